package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/import/repository"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = fmt.Errorf("file is too large: %w", common.ErrInvalidInput)

// zip container, which every XLSX file is
var zipMagic = []byte("PK\x03\x04")

// Upload is a statement file as received from the client.
type Upload struct {
	Name   string
	Reader io.Reader
}

// readLimited reads at most limit bytes and fails if more are available.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, common.Invalid("file", "is required")
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrFileTooLarge, limit)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, common.Invalid("file", "is empty")
	}
	return data, nil
}

// detectFileType trusts the zip signature over the extension.
func detectFileType(name string, data []byte) (string, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return repository.FileTypeXLSX, nil
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return "", common.Invalid("file", "is not a valid XLSX workbook")
	case ".xls":
		return "", common.Invalid("file", "legacy .xls workbooks are not supported, save as .xlsx or .csv")
	}
	return repository.FileTypeCSV, nil
}

// fileError marks a failure to read the statement itself, as opposed to
// an infrastructure error. Such imports are recorded as failed.
type fileError struct {
	err error
}

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

func asFileError(err error) (*fileError, bool) {
	var fe *fileError
	ok := errors.As(err, &fe)
	return fe, ok
}
