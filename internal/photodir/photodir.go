package photodir

import (
	"fmt"
	"os"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"faceattend/internal/apperrors"
)

// Dir manages the flat reference-photo directory. Filenames are
// <employee_id>.jpg; the filename-to-identifier mapping is an invariant the
// rest of the service relies on, so every path is derived here and nowhere
// else.
type Dir struct {
	root string
}

// New creates the directory if needed.
func New(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("photo dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory root.
func (d *Dir) Root() string { return d.root }

// Path derives the on-disk path for an employee's reference photo.
// Identifiers are attacker-controlled form input, so the join is hardened
// against traversal.
func (d *Dir) Path(employeeID string) (string, error) {
	if employeeID == "" {
		return "", apperrors.Invalid("employee id required")
	}
	if strings.ContainsAny(employeeID, `/\`) || strings.Contains(employeeID, "..") {
		return "", apperrors.Invalid("employee id %q contains path separators", employeeID)
	}
	return securejoin.SecureJoin(d.root, employeeID+".jpg")
}

// Write stores image bytes as the employee's reference photo. The write goes
// through a temp file and rename so readers never observe a torn photo.
func (d *Dir) Write(employeeID string, image []byte) (string, error) {
	path, err := d.Path(employeeID)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(d.root, "."+employeeID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp photo: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close photo: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store photo: %w", err)
	}
	return path, nil
}

// Read returns the employee's reference photo bytes.
func (d *Dir) Read(employeeID string) ([]byte, error) {
	path, err := d.Path(employeeID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NotFound("no reference photo for %s", employeeID)
	}
	return data, err
}

// Exists reports whether a reference photo is present.
func (d *Dir) Exists(employeeID string) bool {
	path, err := d.Path(employeeID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Remove deletes the employee's reference photo. Used to roll back failed
// registrations; missing files are not an error.
func (d *Dir) Remove(employeeID string) error {
	path, err := d.Path(employeeID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the employee identifiers present in the directory.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jpg") || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jpg"))
	}
	return ids, nil
}

// Report describes drift between the photo directory and the employee store.
type Report struct {
	MissingPhotos []string `json:"missing_photos"` // employees without a photo file
	OrphanPhotos  []string `json:"orphan_photos"`  // photo files with no employee row
	Pruned        []string `json:"pruned,omitempty"`
}

// Clean reports whether the directory and store agree.
func (r Report) Clean() bool {
	return len(r.MissingPhotos) == 0 && len(r.OrphanPhotos) == 0
}

// Reconcile diffs the directory against the given employee identifiers.
// When prune is set, orphan photos are deleted.
func (d *Dir) Reconcile(storeIDs []string, prune bool) (Report, error) {
	onDisk, err := d.List()
	if err != nil {
		return Report{}, err
	}
	disk := make(map[string]bool, len(onDisk))
	for _, id := range onDisk {
		disk[id] = true
	}

	var rep Report
	known := make(map[string]bool, len(storeIDs))
	for _, id := range storeIDs {
		known[id] = true
		if !disk[id] {
			rep.MissingPhotos = append(rep.MissingPhotos, id)
		}
	}
	for _, id := range onDisk {
		if known[id] {
			continue
		}
		rep.OrphanPhotos = append(rep.OrphanPhotos, id)
		if prune {
			if err := d.Remove(id); err == nil {
				rep.Pruned = append(rep.Pruned, id)
			}
		}
	}
	sort.Strings(rep.MissingPhotos)
	sort.Strings(rep.OrphanPhotos)
	return rep, nil
}
