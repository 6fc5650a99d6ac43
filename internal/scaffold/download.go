// Package scaffold creates a new markdown-to-latex project from the
// boilerplate repository and tailors it to the selected features.
package scaffold

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdown-to-latex/manager/internal/config"
	merrors "github.com/markdown-to-latex/manager/internal/errors"
)

// maxArchiveSize bounds the downloaded boilerplate archive.
const maxArchiveSize = 256 << 20

// BoilerplateURL returns the archive URL of branch. pattern contains one %s
// for the branch; an empty pattern uses the GitHub codeload URL.
func BoilerplateURL(pattern, branch string) string {
	if pattern == "" {
		pattern = config.DefaultBoilerplateURL
	}
	return fmt.Sprintf(pattern, branch)
}

// Download fetches the boilerplate archive of branch from url and unpacks
// its top-level directory into dir. dir may already exist; archive entries
// are then merged into it.
func Download(ctx context.Context, client *http.Client, url, branch, dir string) error {
	if client == nil {
		client = http.DefaultClient
	}

	tmp, err := os.MkdirTemp("", "md-to-latex-boilerplate")
	if err != nil {
		return merrors.NewScaffoldError("download", err)
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "boilerplate.zip")
	if err := fetch(ctx, client, url, archive); err != nil {
		return err
	}

	extracted := filepath.Join(tmp, "extracted")
	if err := unzip(archive, extracted); err != nil {
		return merrors.NewDownloadError(url, fmt.Errorf("unpacking archive: %w", err))
	}

	root, err := archiveRoot(extracted, branch)
	if err != nil {
		return merrors.NewDownloadError(url, err)
	}

	if err := moveInto(root, dir); err != nil {
		return merrors.NewScaffoldError("download", err)
	}
	return nil
}

func fetch(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return merrors.NewDownloadError(url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return merrors.NewDownloadError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return merrors.NewDownloadError(url, fmt.Errorf("unexpected response status %d, check the branch name", resp.StatusCode)).
			WithContext("status", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return merrors.NewScaffoldError("download", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return merrors.NewDownloadError(url, err)
	}
	if n > maxArchiveSize {
		return merrors.NewDownloadError(url, fmt.Errorf("archive exceeds %d bytes", maxArchiveSize))
	}
	return nil
}

func unzip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	base, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		target := filepath.Join(base, filepath.FromSlash(f.Name))
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes the destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// archiveRoot finds the directory GitHub wraps the branch contents in,
// "boilerplate-<branch>" with slashes in the branch replaced by dashes.
func archiveRoot(extracted, branch string) (string, error) {
	expected := filepath.Join(extracted, "boilerplate-"+strings.ReplaceAll(branch, "/", "-"))
	if info, err := os.Stat(expected); err == nil && info.IsDir() {
		return expected, nil
	}

	entries, err := os.ReadDir(extracted)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(extracted, entries[0].Name()), nil
	}
	return "", fmt.Errorf("archive has no boilerplate-%s directory", branch)
}

// moveInto renames src to dst, or moves src's entries into dst when dst
// already exists.
func moveInto(src, dst string) error {
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		// rename fails across devices; fall back to merging
		if err := os.MkdirAll(dst, 0755); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		if err := os.RemoveAll(to); err != nil {
			return err
		}
		if err := os.Rename(from, to); err != nil {
			if err := copyTree(from, to); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
