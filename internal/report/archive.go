package report

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/framecheck/internal/sampler"
)

// ReportName is the archive entry holding the text report.
const ReportName = "report.txt"

// Bundle is everything that goes into one inspection archive.
type Bundle struct {
	Details Details
	Result  sampler.Result
	// VideoPath is copied into the archive under its sanitized name when set.
	VideoPath string
}

// FrameName is the archive entry name of a frame (frame_01.jpg).
func FrameName(f sampler.Frame) string {
	return fmt.Sprintf("frame_%02d.%s", f.Index, f.Format.Ext())
}

// WriteArchive writes the bundle as a zip to w.
func WriteArchive(ctx context.Context, w io.Writer, b Bundle) error {
	zw := zip.NewWriter(w)

	modified := b.Details.GeneratedAt
	if modified.IsZero() {
		modified = time.Now()
	}

	if err := addBytes(zw, ReportName, []byte(Text(b.Details, b.Result)), modified); err != nil {
		return fmt.Errorf("add %s to zip: %w", ReportName, err)
	}

	if b.VideoPath != "" {
		name := SanitizeFilename(b.Details.VideoName)
		if b.Details.VideoName == "" {
			name = SanitizeFilename(filepath.Base(b.VideoPath))
		}
		if err := addFile(zw, b.VideoPath, name); err != nil {
			return fmt.Errorf("add %s to zip: %w", name, err)
		}
	}

	for _, f := range b.Result.Frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := FrameName(f)
		// Encoded images are already compressed.
		if err := addStored(zw, name, f.Data, modified); err != nil {
			return fmt.Errorf("add %s to zip: %w", name, err)
		}
	}

	return zw.Close()
}

// CreateArchive writes the bundle to a zip file at outputPath.
func CreateArchive(ctx context.Context, outputPath string, b Bundle) error {
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}

	if err := WriteArchive(ctx, zipFile, b); err != nil {
		zipFile.Close()
		os.Remove(outputPath)
		return err
	}
	return zipFile.Close()
}

// ArchiveName is the default download name for an inspection.
func ArchiveName(serial string, at time.Time) string {
	base := SanitizeFilename(serial)
	if strings.TrimSpace(serial) == "" {
		base = "inspection"
	}
	return fmt.Sprintf("%s_%s.zip", base, at.Format("20060102_150405"))
}

func addBytes(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	writer, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}

func addStored(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	writer, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: modified})
	if err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}

func addFile(zw *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = name
	header.Method = zip.Store

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
