package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pavelanni/worksheetgen/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ws, err := h.wizard.Worksheet()
	if err != nil {
		h.fail(w, r, err, "InternalError")
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, ws); err != nil {
		slog.Error("failed to build workbook", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError", "")
		return
	}
	name := export.FileName(ws, h.now())
	if _, err := h.exports.RecordExport(r.Context(), ws.ID.String(), name); err != nil {
		slog.Error("failed to record export", "error", err)
	}
	slog.Info("workbook exported", "file", name, "worksheet_id", ws.ID)

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to send workbook", "error", err)
	}
}

func (h *Handler) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.exports.ListExports(r.Context())
	if err != nil {
		slog.Error("failed to list exports", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError", "")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}
