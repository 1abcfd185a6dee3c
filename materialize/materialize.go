// Package materialize copies run outputs back into a workspace and sorts
// them into previewable and download-only files.
package materialize

import (
	"github.com/caffeineduck/browserbox/workspace"
)

// Report lists the materialized file names by how they can be presented.
type Report struct {
	Previewable  []string `json:"previewable"`
	DownloadOnly []string `json:"download_only"`
}

// Len returns the total number of files in the report.
func (r Report) Len() int {
	return len(r.Previewable) + len(r.DownloadOnly)
}

// Apply overwrites or inserts each produced file into ws, in order, and
// classifies it. Files with invalid names are skipped.
func Apply(ws *workspace.Workspace, produced []workspace.StagedFile) Report {
	var r Report
	for _, f := range produced {
		staged, err := ws.Add(f.Name, f.Content)
		if err != nil {
			continue
		}
		if staged.Kind.Previewable() {
			r.Previewable = append(r.Previewable, staged.Name)
		} else {
			r.DownloadOnly = append(r.DownloadOnly, staged.Name)
		}
	}
	return r
}

// Previewable reports whether a file with this name can be rendered inline.
// It depends on the name only.
func Previewable(name string) bool {
	return workspace.Classify(name).Previewable()
}

// ContentType returns the media type used when serving a file of kind k.
func ContentType(k workspace.Kind) string {
	switch k {
	case workspace.KindHTML:
		return "text/html; charset=utf-8"
	case workspace.KindCSV:
		return "text/csv; charset=utf-8"
	case workspace.KindJSON:
		return "application/json"
	case workspace.KindParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
