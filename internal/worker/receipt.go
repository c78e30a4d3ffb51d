package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/settings"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const receiptWidth = 40

// ReceiptWorker writes a receipt to the spool directory for every completed
// or returned order while POS.AutoPrint is on. Each event is handled once.
type ReceiptWorker struct {
	source   Source
	handler  *broker.EventHandler
	backend  store.Backend
	settings *settings.Registry
	spoolDir string
	logger   *zap.Logger
}

// NewReceiptWorker creates a new receipt worker
func NewReceiptWorker(source Source, backend store.Backend, registry *settings.Registry, spoolDir string) *ReceiptWorker {
	w := &ReceiptWorker{
		source:   source,
		handler:  broker.NewEventHandler(),
		backend:  backend,
		settings: registry,
		spoolDir: spoolDir,
		logger:   util.GetLogger(),
	}
	w.handler.OnOrderCompleted(w.HandleOrderCompleted)
	w.handler.OnOrderReturned(w.HandleOrderReturned)
	return w
}

// Start consumes events until ctx is cancelled
func (w *ReceiptWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting receipt worker", zap.String("spool_dir", w.spoolDir))
	return w.source.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *ReceiptWorker) Stop() error {
	w.logger.Info("Stopping receipt worker")
	return w.source.Close()
}

// HandleOrderCompleted prints a sale receipt
func (w *ReceiptWorker) HandleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return w.once(ctx, event.BaseEvent, func(ctx context.Context) error {
		return w.print(ctx, event.EventID, receipt{
			title:    "SALE",
			orderID:  event.OrderID,
			items:    event.Items,
			subtotal: event.Subtotal,
			discount: event.Discount,
			total:    event.TotalAmount,
			payments: event.Payments,
		})
	})
}

// HandleOrderReturned prints a return slip
func (w *ReceiptWorker) HandleOrderReturned(ctx context.Context, event *models.OrderReturnedEvent) error {
	return w.once(ctx, event.BaseEvent, func(ctx context.Context) error {
		return w.print(ctx, event.EventID, receipt{
			title:   "RETURN",
			orderID: event.OrderID,
			items:   event.Items,
			total:   event.TotalAmount,
		})
	})
}

// once runs fn unless the event was already handled, then records it
func (w *ReceiptWorker) once(ctx context.Context, event models.BaseEvent, fn func(context.Context) error) error {
	var processed bool
	err := w.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		processed, err = repo.IsEventProcessed(ctx, event.EventID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := fn(ctx); err != nil {
		return err
	}

	return w.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.MarkEventProcessed(ctx, event.EventID, event.EventType)
	})
}

type receipt struct {
	title    string
	orderID  int64
	items    []models.OrderItemData
	subtotal decimal.Decimal
	discount decimal.Decimal
	total    decimal.Decimal
	payments []models.PaymentData
}

func (w *ReceiptWorker) print(ctx context.Context, eventID string, r receipt) error {
	enabled, err := w.settings.Bool(ctx, models.SettingAutoPrintReceipt, false)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	body, err := w.render(ctx, r)
	if err != nil {
		return err
	}

	// redelivered events overwrite the same file
	name := uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID)).String() + ".txt"
	path := filepath.Join(w.spoolDir, name)
	if err := writeFileAtomic(path, []byte(body)); err != nil {
		return fmt.Errorf("failed to spool receipt: %w", err)
	}

	util.ReceiptsPrintedTotal.Inc()
	w.logger.Info("Receipt spooled",
		zap.Int64("order_id", r.orderID),
		zap.String("kind", r.title),
		zap.String("path", path))
	return nil
}

func (w *ReceiptWorker) render(ctx context.Context, r receipt) (string, error) {
	storeName, err := w.settings.String(ctx, models.SettingStoreName, "")
	if err != nil {
		return "", err
	}
	phone, err := w.settings.String(ctx, models.SettingStorePhone, "")
	if err != nil {
		return "", err
	}
	address, err := w.settings.String(ctx, models.SettingStoreAddress, "")
	if err != nil {
		return "", err
	}
	footer, err := w.settings.String(ctx, models.SettingInvoiceFooter, "")
	if err != nil {
		return "", err
	}

	money := func(d decimal.Decimal) (string, error) {
		return w.settings.FormatAmount(ctx, d)
	}

	var b strings.Builder
	rule := strings.Repeat("-", receiptWidth)

	for _, line := range []string{storeName, address, phone} {
		if line != "" {
			b.WriteString(center(line))
		}
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%s  Order #%d\n", r.title, r.orderID)
	b.WriteString(rule + "\n")

	for _, item := range r.items {
		lineTotal, err := money(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%-20s %19s\n", fmt.Sprintf("#%d x%d", item.ProductID, item.Quantity), lineTotal)
	}
	b.WriteString(rule + "\n")

	if r.title == "SALE" {
		for _, row := range []struct {
			label  string
			amount decimal.Decimal
		}{{"Subtotal", r.subtotal}, {"Discount", r.discount}} {
			s, err := money(row.amount)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%-20s %19s\n", row.label, s)
		}
	}
	total, err := money(r.total)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%-20s %19s\n", "TOTAL", total)

	for _, p := range r.payments {
		s, err := money(p.Amount)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%-20s %19s\n", string(p.Method), s)
	}

	if footer != "" {
		b.WriteString(rule + "\n")
		b.WriteString(center(footer))
	}
	return b.String(), nil
}

func center(s string) string {
	if len(s) >= receiptWidth {
		return s + "\n"
	}
	return strings.Repeat(" ", (receiptWidth-len(s))/2) + s + "\n"
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
