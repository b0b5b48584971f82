package backup

import "time"

// ManifestName is the file name of the manifest in the backup root folder
const ManifestName = "manifest.yml"

// Manifest of a backup, maps every archived file back to its source
type Manifest struct {
	// Version of manifest format
	Version int `yaml:"version"`
	// ID of the backup (name of the root folder)
	ID string `yaml:"id"`
	// Date of backup creation
	Date time.Time `yaml:"date"`

	// Tables exported into the database folder
	Tables []ManifestTable `yaml:"tables,omitempty"`

	// Buckets exported into the storage folder
	Buckets []ManifestBucket `yaml:"buckets,omitempty"`

	// Artifacts stored in the root folder
	Artifacts []string `yaml:"artifacts,omitempty"`
}

type ManifestTable struct {
	Name    string `yaml:"name"`
	File    string `yaml:"file,omitempty"`
	Records int    `yaml:"records"`
	Error   string `yaml:"error,omitempty"`
}

type ManifestBucket struct {
	Name  string         `yaml:"name"`
	Error string         `yaml:"error,omitempty"`
	Files []ManifestFile `yaml:"files,omitempty"`
}

type ManifestFile struct {
	// Path of the object inside the bucket
	Path string `yaml:"path"`
	// Name of the file in the bucket folder
	Name  string `yaml:"name"`
	Error string `yaml:"error,omitempty"`
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func newManifest(id string, date time.Time, tables []TableOutcome, buckets []BucketReport, artifacts []string) *Manifest {
	meta := &Manifest{
		Version:   1,
		ID:        id,
		Date:      date,
		Artifacts: artifacts,
	}

	for _, table := range tables {
		entry := ManifestTable{
			Name:    table.Table,
			Records: table.Records,
			Error:   errorString(table.Err),
		}
		if table.Succeeded {
			entry.File = table.Table + ".json"
		}
		meta.Tables = append(meta.Tables, entry)
	}

	for _, bucket := range buckets {
		entry := ManifestBucket{
			Name:  bucket.Bucket,
			Error: errorString(bucket.Err),
		}
		for _, obj := range bucket.Objects {
			entry.Files = append(entry.Files, ManifestFile{
				Path:  obj.Path,
				Name:  obj.Name,
				Error: errorString(obj.Err),
			})
		}
		meta.Buckets = append(meta.Buckets, entry)
	}
	return meta
}
