package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// запрещённые типы: исполняемые файлы не принимаются ни как требования,
// ни как результат работы.
var blockedTypes = map[string]struct{}{
	"application/x-executable":  {},
	"application/x-msdownload":  {},
	"application/x-mach-binary": {},
	"application/vnd.microsoft.portable-executable": {},
}

// DeliveryStorage отвечает за файловое хранилище вложений заказов: файлов
// требований от покупателя и файлов результата от продавца.
type DeliveryStorage struct {
	rootPath       string
	maxUploadBytes int64
}

// NewDeliveryStorage создаёт файловое хранилище.
func NewDeliveryStorage(rootPath string, maxUploadMB int64) (*DeliveryStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}
	return &DeliveryStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

// Save сохраняет файл вложения и возвращает относительный путь. Тип файла
// определяется по содержимому, а не по расширению.
func (s *DeliveryStorage) Save(ctx context.Context, orderID uuid.UUID, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	head := make([]byte, 261)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", 0, fmt.Errorf("storage: чтение заголовка файла: %w", err)
	}
	head = head[:n]

	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		if _, blocked := blockedTypes[kind.MIME.Value]; blocked {
			return "", 0, fmt.Errorf("storage: тип файла %s не принимается", kind.MIME.Value)
		}
	}

	safeName := sanitizeFilename(originalName)
	fileName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), safeName)

	orderDir := filepath.Join(s.rootPath, orderID.String())
	if err := os.MkdirAll(orderDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать каталог заказа: %w", err)
	}

	targetPath := filepath.Join(orderDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: io.MultiReader(bytes.NewReader(head), r), N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}
	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	relative := filepath.Join(orderID.String(), fileName)
	return relative, written, nil
}

// Open открывает сохранённый файл для отдачи клиенту.
func (s *DeliveryStorage) Open(ctx context.Context, relativePath string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.rootPath, filepath.Clean(relativePath)))
}

// Delete удаляет файл из хранилища.
func (s *DeliveryStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(s.rootPath, relativePath)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// sanitizeFilename удаляет потенциально опасные символы из имени файла.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "file"
	}
	return name
}
