package service

import (
	"context"
	"fmt"
	"log"
	"time"
)

// CleanupService периодически удаляет истёкшие ссылки из хранилища
type CleanupService struct {
	links    *LinkService
	interval time.Duration
}

func NewCleanupService(links *LinkService, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{links: links, interval: interval}
}

// AutoCleanup запускает одну очистку
func (s *CleanupService) AutoCleanup(ctx context.Context) error {
	if _, err := s.links.PurgeExpired(ctx); err != nil {
		return fmt.Errorf("failed to purge expired links: %w", err)
	}
	return nil
}

// Run выполняет очистку по таймеру до отмены ctx
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Println("Running link cleanup...")
			if err := s.AutoCleanup(ctx); err != nil {
				log.Printf("Link cleanup error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
