package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"today-feed/internal/domain/entity"
)

// writeArtifacts emits the feed JSON, the channel list, and the run report,
// then uploads the public artifacts unless uploads are disabled. A failure
// to write the feed artifact is fatal for the run; everything after it is
// best-effort.
func (s *Service) writeArtifacts(ctx context.Context, articles []*entity.Article, report *entity.Report) error {
	if err := s.writeFeed(articles); err != nil {
		return err
	}

	if err := s.writeChannels(ctx); err != nil {
		slog.Error("failed to write channel list", slog.Any("error", err))
	}

	if err := s.writeReport(report); err != nil {
		slog.Error("failed to write report", slog.Any("error", err))
	}

	if s.cfg.NoUpload {
		return nil
	}
	s.uploadArtifacts(ctx)
	return nil
}

// writeFeed writes the feed artifact atomically: the JSON lands in a -tmp
// file first and is renamed over the final path.
func (s *Service) writeFeed(articles []*entity.Article) error {
	if err := os.MkdirAll(s.cfg.OutputFeedPath, 0o755); err != nil {
		return fmt.Errorf("writeFeed: %w", err)
	}

	// A run with zero articles still emits a valid empty array.
	if articles == nil {
		articles = []*entity.Article{}
	}
	raw, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("writeFeed: encode: %w", err)
	}

	finalPath := s.cfg.FeedArtifactPath()
	tmpPath := finalPath + "-tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("writeFeed: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("writeFeed: rename: %w", err)
	}
	return nil
}

// writeChannels writes the sorted distinct channel list.
func (s *Service) writeChannels(ctx context.Context) error {
	channels, err := s.articleRepo.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("writeChannels: %w", err)
	}
	if channels == nil {
		channels = []string{}
	}

	raw, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("writeChannels: encode: %w", err)
	}
	if err := os.MkdirAll(s.cfg.OutputPath, 0o755); err != nil {
		return fmt.Errorf("writeChannels: %w", err)
	}
	if err := os.WriteFile(s.cfg.ChannelFilePath(), raw, 0o644); err != nil {
		return fmt.Errorf("writeChannels: %w", err)
	}
	return nil
}

// writeReport writes the per-feed stats report.
func (s *Service) writeReport(report *entity.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("writeReport: encode: %w", err)
	}
	if err := os.MkdirAll(s.cfg.OutputPath, 0o755); err != nil {
		return fmt.Errorf("writeReport: %w", err)
	}
	if err := os.WriteFile(s.cfg.ReportPath(), raw, 0o644); err != nil {
		return fmt.Errorf("writeReport: %w", err)
	}
	return nil
}

// uploadArtifacts pushes the feed artifact (under both the current and the
// legacy key) and the channel list to the public bucket. Upload failures are
// logged; the local artifacts remain authoritative.
func (s *Service) uploadArtifacts(ctx context.Context) {
	localeSuffix := strings.Replace(s.cfg.SourcesFile, "sources", "", 1)

	feedBody, err := os.ReadFile(s.cfg.FeedArtifactPath())
	if err != nil {
		slog.Error("failed to read feed artifact for upload", slog.Any("error", err))
		return
	}

	keys := []string{
		// Current key and the legacy no-dot variant some older clients
		// still request.
		fmt.Sprintf("brave-today/%s%s.json", s.cfg.FeedPath, localeSuffix),
		fmt.Sprintf("brave-today/%s%sjson", s.cfg.FeedPath, localeSuffix),
	}
	for _, key := range keys {
		if err := s.uploader.Upload(ctx, s.cfg.PubS3Bucket, key, feedBody, "application/json"); err != nil {
			slog.Error("feed artifact upload failed",
				slog.String("key", key),
				slog.Any("error", err))
		}
	}

	channelBody, err := os.ReadFile(s.cfg.ChannelFilePath())
	if err != nil {
		slog.Error("failed to read channel list for upload", slog.Any("error", err))
		return
	}
	key := "brave-today/" + filepath.Base(s.cfg.ChannelFile)
	if err := s.uploader.Upload(ctx, s.cfg.PubS3Bucket, key, channelBody, "application/json"); err != nil {
		slog.Error("channel list upload failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
}
