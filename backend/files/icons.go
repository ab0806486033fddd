package files

import (
	"path/filepath"
	"strings"
)

var iconByExt = map[string]string{
	".pdf":  "pdf",
	".doc":  "doc",
	".docx": "doc",
	".txt":  "text",
	".md":   "text",
	".csv":  "sheet",
	".xls":  "sheet",
	".xlsx": "sheet",
	".ppt":  "slides",
	".pptx": "slides",
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".gif":  "image",
	".svg":  "image",
	".mp3":  "audio",
	".wav":  "audio",
	".mp4":  "video",
	".mov":  "video",
	".zip":  "archive",
	".rar":  "archive",
	".7z":   "archive",
	".gz":   "archive",
}

// IconFor names the icon shown next to a file in listings.
func IconFor(name string) string {
	if icon, ok := iconByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return icon
	}
	return "file"
}
