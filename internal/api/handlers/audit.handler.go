package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// AuditHandler serves the append-only log: filtered queries, CSV export,
// live WebSocket tail, and the retention admin surface.
type AuditHandler struct {
	audit         *services.AuditService
	retentionDays int
	logger        logger.Logger
}

func NewAuditHandler(audit *services.AuditService, retentionDays int, log logger.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, retentionDays: retentionDays, logger: log}
}

// Query handles GET /api/v1/audit/logs. The time range defaults to the last
// seven days; `q` carries a Lucene-style expression over the whitelisted
// columns.
func (h *AuditHandler) Query(c *gin.Context) {
	q, ok := h.queryFrom(c)
	if !ok {
		return
	}

	entries, total, err := h.audit.Query(c.Request.Context(), q)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"entries": entries,
			"total":   total,
			"limit":   q.Limit,
			"offset":  q.Offset,
		},
	})
}

// Export handles GET /api/v1/audit/logs/export, streaming the matching
// entries as CSV.
func (h *AuditHandler) Export(c *gin.Context) {
	q, ok := h.queryFrom(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="audit-export.csv"`)
	if err := h.audit.ExportCSV(c.Request.Context(), q, c.Writer); err != nil {
		// Headers may already be out; log instead of switching to JSON
		// mid-stream.
		h.logger.Error("Audit export aborted", "tenant", q.TenantID, "error", err)
	}
}

func (h *AuditHandler) queryFrom(c *gin.Context) (repo.AuditQuery, bool) {
	q := repo.AuditQuery{
		TenantID:     tenantFrom(c),
		EventType:    c.Query("eventType"),
		Actor:        c.Query("actor"),
		ResourceType: c.Query("resourceType"),
		ResourceID:   c.Query("resourceId"),
		Action:       c.Query("action"),
		Decision:     c.Query("decision"),
		IP:           c.Query("ip"),
		Search:       c.Query("q"),
		Limit:        queryInt(c, "limit", 100),
		Offset:       queryInt(c, "offset", 0),
	}

	var ok bool
	if q.From, ok = queryTime(c, "from"); !ok {
		return q, false
	}
	if q.To, ok = queryTime(c, "to"); !ok {
		return q, false
	}
	return q, true
}

func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		abortWithError(c, models.Ef(models.ErrValidationFailed, "%s must be RFC3339", name))
		return time.Time{}, false
	}
	return t, true
}

// Tail handles GET /api/v1/audit/logs/tail, upgrading to a WebSocket that
// streams the tenant's entries as they are recorded. Slow consumers drop
// entries rather than slowing the recorder.
func (h *AuditHandler) Tail(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusUpgradeRequired, gin.H{
			"status": "error",
			"error":  "WebSocket upgrade required",
			"detail": "connect with a WebSocket client, e.g. wscat -c ws://host/api/v1/audit/logs/tail?token=...",
		})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 32 << 10,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Audit tail upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	const tailBuffer = 256
	entries, cancel := h.audit.Subscribe(tenantFrom(c), tailBuffer)
	defer cancel()

	type frame struct {
		Type string      `json:"type"` // entry|heartbeat
		Data interface{} `json:"data,omitempty"`
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(frame{Type: "entry", Data: entry}); err != nil {
				return
			}
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(frame{Type: "heartbeat", Data: gin.H{"ts": time.Now().UnixMilli()}}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// RunRetention handles POST /admin/audit/retention/run: make sure upcoming
// partitions exist and drop the ones past the horizon.
func (h *AuditHandler) RunRetention(c *gin.Context) {
	dropped, err := h.audit.RunRetention(c.Request.Context(), h.retentionDays)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"dropped": dropped, "retentionDays": h.retentionDays},
	})
}

func (h *AuditHandler) ListPartitions(c *gin.Context) {
	partitions, err := h.audit.ListPartitions(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": partitions})
}
