package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/domain/shared"
	"github.com/erp/delivery/internal/infrastructure/config"
	"github.com/erp/delivery/internal/infrastructure/printing"
)

const defaultMaxTableRows = 12

// ConfirmPagePath is the public confirmation page the QR code points at
const ConfirmPagePath = "/confirmar-entrega"

// ArtifactService builds printable delivery notes: it mints the single-use
// code, stores the pending record and renders the PDF artifact.
type ArtifactService struct {
	records        delivery.DeliveryRecordRepository
	templateEngine *printing.TemplateEngine
	renderer       printing.PDFRenderer
	storage        printing.PDFStorage
	baseURL        string
	companyName    string
	maxTableRows   int
	logger         *zap.Logger
	now            func() time.Time
}

// NewArtifactService creates a new ArtifactService
func NewArtifactService(
	records delivery.DeliveryRecordRepository,
	templateEngine *printing.TemplateEngine,
	renderer printing.PDFRenderer,
	storage printing.PDFStorage,
	appCfg config.AppConfig,
	printingCfg config.PrintingConfig,
	logger *zap.Logger,
) *ArtifactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRows := printingCfg.MaxTableRows
	if maxRows <= 0 {
		maxRows = defaultMaxTableRows
	}
	return &ArtifactService{
		records:        records,
		templateEngine: templateEngine,
		renderer:       renderer,
		storage:        storage,
		baseURL:        appCfg.BaseURL,
		companyName:    appCfg.Name,
		maxTableRows:   maxRows,
		logger:         logger,
		now:            time.Now,
	}
}

// BuildDeliveryNote mints a delivery code, stores the pending record and
// renders the printable note. Re-issuing for the same order revokes any
// earlier pending codes, so only the latest printout can be confirmed.
func (s *ArtifactService) BuildDeliveryNote(ctx context.Context, req BuildDeliveryNoteRequest) (*BuildDeliveryNoteResponse, error) {
	if req.OrderID <= 0 {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order ID must be positive")
	}
	if len(req.Items) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Delivery note requires at least one item")
	}

	record, err := s.buildRecord(req)
	if err != nil {
		return nil, err
	}

	// Revoke and insert share one transaction, so two concurrent builds for
	// the same order cannot both come out with a live code.
	revoked, err := s.records.SupersedePending(ctx, record)
	if err != nil {
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return nil, fmt.Errorf("failed to store pending record: %w", err)
		}
		// Probabilistic code collision. One retry with a fresh suffix.
		s.logger.Warn("delivery code collision, regenerating",
			zap.String("code", record.Code),
			zap.Int64("order_id", req.OrderID))
		record, err = s.buildRecord(req)
		if err != nil {
			return nil, err
		}
		revoked, err = s.records.SupersedePending(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("failed to store pending record: %w", err)
		}
	}
	if revoked > 0 {
		s.logger.Info("superseded pending delivery codes",
			zap.Int64("order_id", req.OrderID),
			zap.Int64("revoked", revoked))
	}

	issuedAt := s.now()
	confirmURL := s.confirmURL(record.Code, record.OrderID)

	pdfResult, err := s.renderNote(ctx, record, confirmURL, issuedAt)
	if err != nil {
		// The pending record stays valid; rebuilding revokes and replaces it
		return nil, err
	}

	event := delivery.NewDeliveryNoteIssuedEvent(record)
	s.logger.Info("delivery note issued",
		zap.String("event_id", event.EventID().String()),
		zap.String("code", record.Code),
		zap.Int64("order_id", record.OrderID),
		zap.String("customer_code", record.CustomerCode),
		zap.String("total", record.Total.String()))

	return &BuildDeliveryNoteResponse{
		Code:         record.Code,
		RecordID:     record.ID,
		OrderID:      record.OrderID,
		Total:        record.Total,
		PDFPath:      pdfResult.Path,
		PDFURL:       pdfResult.URL,
		ConfirmURL:   confirmURL,
		RevokedCodes: revoked,
		IssuedAt:     issuedAt,
	}, nil
}

// GetNotePDF streams a stored delivery note artifact by relative path
func (s *ArtifactService) GetNotePDF(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.storage.Get(ctx, path)
}

// buildRecord assembles a fresh pending record with a newly minted code
func (s *ArtifactService) buildRecord(req BuildDeliveryNoteRequest) (*delivery.DeliveryRecord, error) {
	code := delivery.GenerateCode(req.OrderID, req.CustomerCode, s.now().UnixMilli())

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = s.now()
	}

	record, err := delivery.NewDeliveryRecord(code, req.OrderID, req.CustomerCode, req.CustomerName, req.Warehouse, orderDate)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != nil {
		record.BindCustomer(*req.CustomerID)
	}
	for _, item := range req.Items {
		if _, err := record.AddItem(item.ProductName, item.Quantity, item.UnitPrice); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// renderNote renders the HTML template to a stored PDF
func (s *ArtifactService) renderNote(ctx context.Context, record *delivery.DeliveryRecord, confirmURL string, issuedAt time.Time) (*printing.StoreResult, error) {
	qrImage, err := printing.QRCodeDataURI(confirmURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR code: %w", err)
	}

	displayItems := record.Items
	omitted := 0
	if len(displayItems) > s.maxTableRows {
		omitted = len(displayItems) - s.maxTableRows
		displayItems = displayItems[:s.maxTableRows]
	}

	noteItems := make([]printing.NoteItem, len(displayItems))
	for i, item := range displayItems {
		noteItems[i] = printing.NoteItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		}
	}

	html, err := s.templateEngine.RenderDeliveryNote(&printing.NoteData{
		CompanyName:  s.companyName,
		Code:         record.Code,
		OrderID:      record.OrderID,
		CustomerCode: record.CustomerCode,
		CustomerName: record.CustomerName,
		Warehouse:    record.Warehouse,
		OrderDate:    record.OrderDate,
		IssuedAt:     issuedAt,
		Items:        noteItems,
		OmittedItems: omitted,
		Total:        record.Total,
		QRImage:      qrImage,
		ConfirmURL:   confirmURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render delivery note template: %w", err)
	}

	renderResult, err := s.renderer.Render(ctx, &printing.RenderRequest{
		HTML:  html,
		Title: "Nota de Entrega " + record.Code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render delivery note PDF: %w", err)
	}

	storeResult, err := s.storage.Store(ctx, record.Code, renderResult.PDFData)
	if err != nil {
		return nil, fmt.Errorf("failed to store delivery note PDF: %w", err)
	}

	return storeResult, nil
}

// confirmURL builds the public confirmation URL the QR code encodes
func (s *ArtifactService) confirmURL(code string, orderID int64) string {
	params := url.Values{}
	params.Set("codigo", code)
	params.Set("pedido", fmt.Sprintf("%d", orderID))
	return s.baseURL + ConfirmPagePath + "?" + params.Encode()
}
