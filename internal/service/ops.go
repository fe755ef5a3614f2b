package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/store"
)

// RunBackup dumps the database and records the outcome. A failed dump is
// still recorded so the backup history shows the gap.
func (s *Service) RunBackup(ctx context.Context) (domain.Backup, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Backup{}, err
	}

	result, dumpErr := s.backups.Dump(ctx)
	record := domain.Backup{
		FileName:  result.FileName,
		SizeBytes: result.SizeBytes,
		Status:    domain.BackupStatusCompleted,
	}
	if dumpErr != nil {
		record.Status = domain.BackupStatusFailed
		record.Notes = dumpErr.Error()
	}

	created, err := s.repo.CreateBackup(ctx, record)
	if err != nil {
		s.logger.Warn("failed to record backup", zap.Error(err))
		if dumpErr != nil {
			return domain.Backup{}, dumpErr
		}
		return domain.Backup{}, err
	}

	s.logAudit(ctx, "backup_run", "backup", created.ID,
		fmt.Sprintf("file=%s,status=%s", created.FileName, created.Status))
	if dumpErr != nil {
		return *created, dumpErr
	}
	return *created, nil
}

func (s *Service) ListBackups(ctx context.Context) ([]domain.Backup, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListBackups(ctx)
}

func (s *Service) RestoreBackup(ctx context.Context, req domain.RestoreRequest) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return fmt.Errorf("%w: file_name required", store.ErrValidation)
	}
	if err := s.backups.Restore(ctx, fileName); err != nil {
		return err
	}
	s.logAudit(ctx, "backup_restore", "backup", "", fmt.Sprintf("file=%s", fileName))
	return nil
}

// DigitizeDocument runs OCR over an uploaded bill image. Extraction failures
// are recorded and returned to the caller as a failed scan, not an error:
// the operator falls back to typing the bill in.
func (s *Service) DigitizeDocument(ctx context.Context, fileName string, content []byte) (domain.Scan, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Scan{}, err
	}
	if s.digitizer == nil {
		return domain.Scan{}, fmt.Errorf("%w: document scanning is not configured", store.ErrValidation)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return domain.Scan{}, fmt.Errorf("%w: file name required", store.ErrValidation)
	}

	scan := domain.Scan{
		FileName: fileName,
		Kind:     "document",
		Status:   domain.ScanStatusCompleted,
	}
	text, err := s.digitizer.Extract(ctx, fileName, content)
	if err != nil {
		s.logger.Warn("document extraction failed", zap.String("file", fileName), zap.Error(err))
		scan.Status = domain.ScanStatusFailed
	} else {
		scan.ExtractedText = text
	}

	created, err := s.repo.CreateScan(ctx, scan)
	if err != nil {
		return domain.Scan{}, err
	}
	s.logAudit(ctx, "document_scan", "scan", created.ID,
		fmt.Sprintf("file=%s,status=%s", created.FileName, created.Status))
	return *created, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}
