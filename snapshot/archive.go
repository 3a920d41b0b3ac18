package snapshot

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"graphdock"

	"github.com/klauspost/compress/gzip"
)

// Archive layout: metadata.json at the root, the native dump under dump/.
const (
	metadataFile = "metadata.json"
	dumpDirName  = "dump"
	dumpFile     = "neo4j.dump"
)

// packArchive writes a gzip-compressed tar at destPath containing the
// metadata document and the dump file.
func packArchive(destPath string, meta Metadata, dumpPath string) (err error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = streamFailed(fmt.Errorf("close archive: %w", cerr))
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	hdr := &tar.Header{Name: metadataFile, Mode: 0o644, Size: int64(len(payload)), ModTime: meta.ExportedAt}
	if err := tw.WriteHeader(hdr); err != nil {
		return streamFailed(fmt.Errorf("write metadata header: %w", err))
	}
	if _, err := tw.Write(payload); err != nil {
		return streamFailed(fmt.Errorf("write metadata: %w", err))
	}

	dump, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer dump.Close()
	st, err := dump.Stat()
	if err != nil {
		return fmt.Errorf("stat dump: %w", err)
	}
	hdr = &tar.Header{Name: path.Join(dumpDirName, dumpFile), Mode: 0o644, Size: st.Size(), ModTime: meta.ExportedAt}
	if err := tw.WriteHeader(hdr); err != nil {
		return streamFailed(fmt.Errorf("write dump header: %w", err))
	}
	if _, err := io.Copy(tw, dump); err != nil {
		return streamFailed(fmt.Errorf("write dump: %w", err))
	}

	if err := tw.Close(); err != nil {
		return streamFailed(fmt.Errorf("finish tar stream: %w", err))
	}
	if err := gz.Close(); err != nil {
		return streamFailed(fmt.Errorf("finish gzip stream: %w", err))
	}
	return nil
}

// unpackArchive extracts the dump file into dir and returns the parsed
// metadata. Only the two known entries are extracted; anything else in the
// tar is skipped, so a crafted archive cannot write outside dir.
func unpackArchive(archivePath, dir string) (Metadata, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return Metadata{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Metadata{}, streamFailed(fmt.Errorf("read archive %s: %w", archivePath, err))
	}
	defer gz.Close()

	var (
		meta     Metadata
		haveMeta bool
		haveDump bool
	)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Metadata{}, streamFailed(fmt.Errorf("read archive entry: %w", err))
		}
		switch path.Clean(hdr.Name) {
		case metadataFile:
			if err := json.NewDecoder(tr).Decode(&meta); err != nil {
				return Metadata{}, fmt.Errorf("parse %s: %w", metadataFile, err)
			}
			haveMeta = true
		case path.Join(dumpDirName, dumpFile):
			if err := extractFile(filepath.Join(dir, dumpFile), tr); err != nil {
				return Metadata{}, streamFailed(err)
			}
			haveDump = true
		}
	}
	if !haveMeta {
		return Metadata{}, fmt.Errorf("archive %s has no %s", archivePath, metadataFile)
	}
	if !haveDump {
		return Metadata{}, fmt.Errorf("archive %s has no %s", archivePath, path.Join(dumpDirName, dumpFile))
	}
	return meta, nil
}

func extractFile(dst string, src io.Reader) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
	}()
	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("extract %s: %w", dst, err)
	}
	return nil
}

func streamFailed(err error) error {
	return fmt.Errorf("%w: %w", graphdock.ErrStreamFailed, err)
}
