package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"sharebox/internal/domain"
	"sharebox/internal/metrics"
	"sharebox/internal/repository"
)

// DownloadAccountant учитывает скачивания по ссылкам после успешной передачи
// и удаляет ссылку, как только лимит исчерпан
type DownloadAccountant struct {
	uow repository.UnitOfWork
}

func NewDownloadAccountant(uow repository.UnitOfWork) *DownloadAccountant {
	return &DownloadAccountant{uow: uow}
}

// DownloadResult: состояние ссылки после учёта скачивания
type DownloadResult struct {
	Downloads int
	Retired   bool
}

// RecordSuccessfulDownload увеличивает счётчик и удаляет исчерпанную ссылку
// в одной транзакции. Если ссылку уже удалил параллельный запрос, возвращается ErrNotFound.
func (a *DownloadAccountant) RecordSuccessfulDownload(ctx context.Context, linkID uuid.UUID) (*DownloadResult, error) {
	var result *DownloadResult
	err := a.uow.WithinTx(ctx, func(st repository.Stores) error {
		var err error
		result, err = consume(ctx, st.Links, linkID)
		return err
	})
	if err != nil {
		return nil, err
	}

	retired := 0
	if result.Retired {
		retired = 1
	}
	observe(metrics.DownloadKindFile, 1, retired)
	return result, nil
}

// RecordSuccessfulDownloads учитывает скачивания архива пространства одной транзакцией.
// Ссылки, которые исчезли к моменту учёта, пропускаются; сбой хранилища
// откатывает учёт всех файлов архива.
func (a *DownloadAccountant) RecordSuccessfulDownloads(ctx context.Context, linkIDs []uuid.UUID) (int, error) {
	var counted, retired int
	err := a.uow.WithinTx(ctx, func(st repository.Stores) error {
		var err error
		counted, retired, err = consumeAll(ctx, st.Links, linkIDs)
		return err
	})
	if err != nil {
		return 0, err
	}

	observe(metrics.DownloadKindSpace, counted, retired)
	return counted, nil
}

// ServeLinks отбирает ещё активные ссылки из linkIDs, вызывает serve и только
// после успешной передачи учитывает скачивание по каждой из них, как
// RecordSuccessfulDownloads. Ссылки с лимитом заблокированы на время передачи,
// и параллельные скачивания тех же ссылок ждут. Безлимитные ссылки не
// блокируются и считаются после передачи. Если serve вернул ошибку, счётчики
// не меняются.
func (a *DownloadAccountant) ServeLinks(
	ctx context.Context,
	kind string,
	linkIDs []uuid.UUID,
	serve func(ctx context.Context, active []domain.FileLink) error,
) (int, error) {
	var counted, retired int
	// Учёт после передачи не должен срываться из-за отключения клиента
	txCtx := context.WithoutCancel(ctx)

	err := a.uow.WithinTx(txCtx, func(st repository.Stores) error {
		active, err := st.Links.LockActiveFileLinks(txCtx, linkIDs)
		if err != nil {
			return err
		}

		if err := serve(ctx, active); err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(active))
		for _, link := range active {
			ids = append(ids, link.ID)
		}
		counted, retired, err = consumeAll(txCtx, st.Links, ids)
		return err
	})
	if err != nil {
		return 0, err
	}

	observe(kind, counted, retired)
	return counted, nil
}

// consumeAll учитывает скачивание по каждой ссылке, пропуская уже удалённые
func consumeAll(ctx context.Context, links repository.LinkStore, linkIDs []uuid.UUID) (counted, retired int, err error) {
	for _, id := range linkIDs {
		res, err := consume(ctx, links, id)
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("[consumeAll] link %s already retired, skipping", id)
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		counted++
		if res.Retired {
			retired++
		}
	}
	return counted, retired, nil
}

func observe(kind string, counted, retired int) {
	if counted > 0 {
		metrics.ObserveDownload(kind)
	}
	metrics.ObserveRetired(metrics.RetireExhausted, retired)
}

// consume: условный инкремент и удаление исчерпанной ссылки.
// Проигравший гонку запрос не находит строку и получает ErrNotFound.
func consume(ctx context.Context, links repository.LinkStore, linkID uuid.UUID) (*DownloadResult, error) {
	link, err := links.IncrementDownloads(ctx, linkID)
	if err != nil {
		return nil, err
	}

	result := &DownloadResult{Downloads: link.Downloads}
	if !link.Exhausted() {
		return result, nil
	}

	deleted, err := links.DeleteIfExhausted(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to retire link %s: %w", linkID, err)
	}
	result.Retired = deleted
	return result, nil
}
