// Пакет metrics содержит Prometheus-метрики sharebox.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DownloadKindFile  = "file"
	DownloadKindSpace = "space"

	RetireExhausted = "exhausted"
	RetireExpired   = "expired"
	RetireRemoved   = "removed"
)

var (
	// downloadsTotal: учтённые скачивания по публичным ссылкам
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebox_downloads_total",
			Help: "Количество учтённых скачиваний по публичным ссылкам",
		},
		[]string{"kind"},
	)

	// linksRetiredTotal: удалённые ссылки по причине удаления
	linksRetiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebox_links_retired_total",
			Help: "Количество удалённых публичных ссылок",
		},
		[]string{"reason"},
	)
)

func ObserveDownload(kind string) {
	downloadsTotal.WithLabelValues(kind).Inc()
}

func ObserveRetired(reason string, n int) {
	if n <= 0 {
		return
	}
	linksRetiredTotal.WithLabelValues(reason).Add(float64(n))
}
