package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/platform/retry"
)

const (
	// ReasonStockAdjustmentFailed is the cancel reason when a decrement fails.
	ReasonStockAdjustmentFailed = "stock_adjustment_failed"

	defaultCompensationTimeout = 30 * time.Second

	opDecrement = "decrement"
	opRestore   = "restore"
)

// Service orchestrates the order saga: creation with stock and pricing,
// checkout and refund.
type Service struct {
	repo           ports.Repository
	inventory      ports.Inventory
	promotions     ports.Promotions
	payments       ports.PaymentGateway
	idempotency    ports.IdempotencyStore
	reconciliation ports.ReconciliationSink
	locks          keyedlock.Locker
	policy         retry.Policy
	logger         *slog.Logger
	now            func() time.Time

	compensationTimeout time.Duration
}

// Option customises the service.
type Option func(*Service)

// WithIdempotencyStore enables Idempotency-Key replay for CreateOrder.
func WithIdempotencyStore(store ports.IdempotencyStore) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithReconciliationSink records stock that could not be credited back.
func WithReconciliationSink(sink ports.ReconciliationSink) Option {
	return func(s *Service) { s.reconciliation = sink }
}

// WithLocker replaces the in-process per-order lock.
func WithLocker(locker keyedlock.Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locks = locker
		}
	}
}

// WithRetryPolicy sets the backoff used for inventory and promotion calls.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Service) { s.policy = policy }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithCompensationTimeout bounds the detached context used to undo stock.
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.compensationTimeout = d
		}
	}
}

// NewService wires the order saga with its collaborators.
func NewService(repo ports.Repository, inventory ports.Inventory, promotions ports.Promotions, payments ports.PaymentGateway, opts ...Option) *Service {
	s := &Service{
		repo:                repo,
		inventory:           inventory,
		promotions:          promotions,
		payments:            payments,
		locks:               keyedlock.NewSharded(0),
		policy:              retry.DefaultPolicy,
		logger:              slog.Default(),
		now:                 func() time.Time { return time.Now().UTC() },
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates stock for every item, prices the order with the
// lowest-id active promotion per product, commits it and takes the stock.
// When a decrement fails the already taken stock is credited back and the
// order is cancelled.
func (s *Service) CreateOrder(ctx context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, mapError(err)
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" || s.idempotency == nil {
		return s.createOrder(ctx, input)
	}

	fingerprint, err := FingerprintCreateOrder(input)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, "order-create:"+key)
	if err != nil {
		return nil, mapError(err)
	}
	defer unlock()

	existing, err := s.idempotency.Get(ctx, key)
	if err != nil {
		return nil, mapError(err)
	}
	if existing != nil {
		if existing.RequestHash != fingerprint {
			return nil, fmt.Errorf("%w: key %q", ErrIdempotencyConflict, key)
		}
		return s.resumeCreate(ctx, existing.OrderID)
	}

	return s.createOrder(ctx, input, func(ctx context.Context, orderID int64) error {
		now := s.now()
		_, err := s.idempotency.Save(ctx, ports.IdempotencyRecord{
			Key:         key,
			RequestHash: fingerprint,
			OrderID:     orderID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return err
	})
}

func (s *Service) createOrder(ctx context.Context, input ordertypes.CreateOrderInput, afterCommit ...func(context.Context, int64) error) (*domain.Order, error) {
	order, err := s.priceOrder(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	if err := order.TransitionTo(domain.StatusCommitted); err != nil {
		return nil, mapError(err)
	}
	saved, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}
	order.ID = saved.ID
	order.Version = saved.Version

	unlock, err := s.locks.Lock(ctx, lockKey(order.ID))
	if err != nil {
		return nil, mapError(err)
	}
	defer unlock()

	for _, hook := range afterCommit {
		if err := hook(ctx, order.ID); err != nil {
			return nil, s.abort(ctx, order, err)
		}
	}
	return s.takeStock(ctx, order)
}

// resumeCreate replays a create for a key that already has an order. An
// order committed without settled stock was interrupted mid-way and takes
// its remaining decrements; an aborted order reports the abort again.
func (s *Service) resumeCreate(ctx context.Context, orderID int64) (*domain.Order, error) {
	unlock, err := s.locks.Lock(ctx, lockKey(orderID))
	if err != nil {
		return nil, mapError(err)
	}
	defer unlock()

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	switch {
	case order.Aborted():
		return nil, fmt.Errorf("%w: order %d was cancelled: %s", ErrOrderAborted, order.ID, order.Reason)
	case order.Status == domain.StatusCommitted && !order.StockSettled:
		s.logger.WarnContext(ctx, "resuming interrupted order creation", slog.Int64("order_id", order.ID))
		return s.takeStock(ctx, order)
	}
	return order, nil
}

// priceOrder resolves every product, rejects the whole request when any
// product lacks stock and applies promotions.
func (s *Service) priceOrder(ctx context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	order, err := domain.NewOrder(input.OwnerID, s.now())
	if err != nil {
		return nil, err
	}

	products := make(map[int64]ports.Product, len(input.Items))
	requested := make(map[int64]int, len(input.Items))
	var productOrder []int64
	for _, item := range input.Items {
		requested[item.ProductID] += item.Quantity
		if _, ok := products[item.ProductID]; ok {
			continue
		}
		product, err := s.getProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, ports.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %d", ErrProductNotFound, item.ProductID)
			}
			return nil, err
		}
		products[item.ProductID] = product
		productOrder = append(productOrder, item.ProductID)
	}

	var shortages []string
	for _, id := range productOrder {
		if requested[id] > products[id].Stock {
			shortages = append(shortages, fmt.Sprintf("product %d: requested %d, available %d", id, requested[id], products[id].Stock))
		}
	}
	if len(shortages) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, strings.Join(shortages, "; "))
	}

	for _, item := range input.Items {
		product := products[item.ProductID]
		if err := order.AddItem(domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		}); err != nil {
			return nil, err
		}
	}
	if err := order.TransitionTo(domain.StatusStockReserved); err != nil {
		return nil, err
	}

	for _, id := range productOrder {
		promos, err := s.listPromotions(ctx, id)
		if err != nil {
			return nil, err
		}
		if promo, ok := domain.SelectPromotion(promos); ok {
			if err := order.ApplyPromotion(id, promo); err != nil {
				return nil, err
			}
		}
	}
	if err := order.TransitionTo(domain.StatusPriced); err != nil {
		return nil, err
	}
	return order, nil
}

// takeStock decrements each item in order and persists the ledger after every
// success so a crash never loses a decrement.
func (s *Service) takeStock(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	var failure error
	for i := range order.Items {
		item := order.Items[i]
		if item.StockDecremented {
			continue
		}
		if err := s.adjustStock(ctx, item.ProductID, -item.Quantity, stockKey(order.ID, i, opDecrement)); err != nil {
			failure = fmt.Errorf("decrement product %d: %w", item.ProductID, err)
			break
		}
		order.MarkDecremented(i)
		if _, err := s.save(ctx, order); err != nil {
			failure = err
			break
		}
	}
	if failure == nil {
		if err := order.Commit(s.now()); err != nil {
			failure = err
		} else if saved, err := s.save(ctx, order); err != nil {
			order.ClearEvents()
			order.StockSettled = false
			failure = err
		} else {
			return saved, nil
		}
	}
	return nil, s.abort(ctx, order, failure)
}

// abort cancels the order and then credits back any taken stock, using a
// context that survives cancellation of the caller. The cancellation is
// persisted first so a replay never resumes an order being compensated.
func (s *Service) abort(parent context.Context, order *domain.Order, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.compensationTimeout)
	defer cancel()

	errs := []error{
		fmt.Errorf("%w: order %d cancelled", ErrOrderAborted, order.ID),
		classifyStockFailure(cause),
	}
	if err := order.Cancel(ReasonStockAdjustmentFailed, s.now()); err != nil {
		return errors.Join(append(errs, mapError(err))...)
	}
	if _, err := s.save(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cancelled order",
			slog.Int64("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		order.ClearEvents()
		return errors.Join(append(errs, s.reportHeldStock(ctx, order, err), mapError(err))...)
	}
	if !holdsStock(order) {
		return errors.Join(errs...)
	}
	if err := s.restoreStock(ctx, order, "compensate"); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.save(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist restored stock",
			slog.Int64("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		errs = append(errs, mapError(err))
	}
	return errors.Join(errs...)
}

// reportHeldStock reports the stock an unsaved cancellation still holds. The
// order stays committed and unsettled, so a replay of its key resumes it
// and Checkout refuses it.
func (s *Service) reportHeldStock(ctx context.Context, order *domain.Order, cause error) error {
	if !holdsStock(order) {
		return nil
	}
	for _, item := range order.Items {
		if !item.NeedsRestore() {
			continue
		}
		s.reportGap(ctx, ports.ReconciliationGap{
			OrderID:    order.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Operation:  "compensate",
			Reason:     "cancellation not persisted: " + cause.Error(),
			DetectedAt: s.now(),
		})
	}
	return fmt.Errorf("%w: order %d holds stock without a persisted cancellation", ErrReconciliationGap, order.ID)
}

func holdsStock(order *domain.Order) bool {
	for _, item := range order.Items {
		if item.NeedsRestore() {
			return true
		}
	}
	return false
}

func classifyStockFailure(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ports.ErrStockConflict), errors.Is(err, ports.ErrProductNotFound):
		return fmt.Errorf("%w: %w", ErrStockRejected, err)
	}
	return mapError(err)
}

// restoreStock credits every item that was decremented and not yet restored.
// Items that cannot be credited are reported as reconciliation gaps and left
// flagged so a later attempt can retry them.
func (s *Service) restoreStock(ctx context.Context, order *domain.Order, operation string) error {
	var gaps []error
	for i := range order.Items {
		item := order.Items[i]
		if !item.NeedsRestore() {
			continue
		}
		if err := s.adjustStock(ctx, item.ProductID, item.Quantity, stockKey(order.ID, i, opRestore)); err != nil {
			s.reportGap(ctx, ports.ReconciliationGap{
				OrderID:    order.ID,
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				Operation:  operation,
				Reason:     err.Error(),
				DetectedAt: s.now(),
			})
			gaps = append(gaps, fmt.Errorf("restore product %d: %w", item.ProductID, err))
			continue
		}
		order.MarkRestored(i)
	}
	if len(gaps) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrReconciliationGap, errors.Join(gaps...))
}

func (s *Service) reportGap(ctx context.Context, gap ports.ReconciliationGap) {
	s.logger.ErrorContext(ctx, "reconciliation gap",
		slog.Int64("order_id", gap.OrderID),
		slog.Int64("product_id", gap.ProductID),
		slog.Int("quantity", gap.Quantity),
		slog.String("operation", gap.Operation),
		slog.String("reason", gap.Reason),
	)
	if s.reconciliation == nil {
		return
	}
	if err := s.reconciliation.RecordGap(ctx, gap); err != nil {
		s.logger.ErrorContext(ctx, "failed to record reconciliation gap",
			slog.Int64("order_id", gap.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// Checkout charges a committed order. A declined charge is not an error: the
// order moves to payment_failed and can be paid later.
func (s *Service) Checkout(ctx context.Context, input ordertypes.CheckoutInput) (*domain.Order, error) {
	method := strings.TrimSpace(input.PaymentMethod)
	token := strings.TrimSpace(input.Token)
	switch {
	case input.OrderID <= 0:
		return nil, fmt.Errorf("%w: order id must be greater than zero", ErrInvalidInput)
	case method == "":
		return nil, fmt.Errorf("%w: payment method is required", ErrInvalidInput)
	case token == "":
		return nil, fmt.Errorf("%w: payment token is required", ErrInvalidInput)
	}

	unlock, err := s.locks.Lock(ctx, lockKey(input.OrderID))
	if err != nil {
		return nil, mapError(err)
	}
	defer unlock()

	order, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapError(err)
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return nil, fmt.Errorf("%w: order %d", ErrAlreadyPaid, order.ID)
	}
	if !order.CanTransition(domain.StatusPaid) {
		return nil, fmt.Errorf("%w: cannot check out a %s order", ErrInvalidState, order.Status)
	}
	if !order.StockSettled {
		return nil, fmt.Errorf("%w: order %d is still being created", ErrConflict, order.ID)
	}

	result, err := s.payments.Charge(ctx, ports.PaymentRequest{
		OrderID: order.ID,
		Amount:  order.Total,
		Method:  method,
		Token:   token,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: payment gateway: %w", ErrUnavailable, err)
	}

	now := s.now()
	if result.Approved {
		err = order.MarkPaid(method, now)
	} else {
		err = order.MarkPaymentFailed(method, result.Reason, now)
	}
	if err != nil {
		return nil, mapError(err)
	}
	saved, err := s.save(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}
	return saved, nil
}

// RequestRefund credits back every item exactly once and cancels the order.
// A refund interrupted by a reconciliation gap stays in refund_requested and
// is resumed by calling RequestRefund again.
func (s *Service) RequestRefund(ctx context.Context, input ordertypes.RefundInput) (*domain.Order, error) {
	if input.OrderID <= 0 {
		return nil, fmt.Errorf("%w: order id must be greater than zero", ErrInvalidInput)
	}
	unlock, err := s.locks.Lock(ctx, lockKey(input.OrderID))
	if err != nil {
		return nil, mapError(err)
	}
	defer unlock()

	order, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapError(err)
	}
	reason := strings.TrimSpace(input.Reason)
	switch order.Status {
	case domain.StatusPaid, domain.StatusFulfilled:
		if err := order.RequestRefund(reason); err != nil {
			return nil, mapError(err)
		}
		if _, err := s.save(ctx, order); err != nil {
			return nil, mapError(err)
		}
	case domain.StatusRefundRequested:
		if reason != "" {
			order.Reason = reason
		}
	default:
		return nil, fmt.Errorf("%w: cannot refund a %s order", ErrInvalidState, order.Status)
	}

	if err := s.restoreStock(ctx, order, "refund"); err != nil {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
		defer cancel()
		if _, saveErr := s.save(persistCtx, order); saveErr != nil {
			return nil, errors.Join(err, mapError(saveErr))
		}
		return nil, err
	}
	if err := order.CompleteRefund(s.now()); err != nil {
		return nil, mapError(err)
	}
	saved, err := s.save(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}
	return saved, nil
}

// GetOrder loads a single order.
func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: order id must be greater than zero", ErrInvalidInput)
	}
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

// ListOrders returns orders, optionally filtered by owner.
func (s *Service) ListOrders(ctx context.Context, input ordertypes.ListOrdersInput) ([]*domain.Order, error) {
	orders, err := s.repo.List(ctx, strings.TrimSpace(input.OwnerID))
	if err != nil {
		return nil, mapError(err)
	}
	return orders, nil
}

// save writes the order with a version check and carries its pending event
// into the outbox. On success the in-memory order tracks the new version.
func (s *Service) save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	expected := order.Version
	events, err := envelopes(order, expected+1)
	if err != nil {
		return nil, err
	}
	order.UpdatedAt = s.now()
	saved, err := s.repo.Update(ctx, order, expected, events...)
	if err != nil {
		return nil, err
	}
	order.Version = saved.Version
	order.ClearEvents()
	return saved, nil
}

func (s *Service) getProduct(ctx context.Context, id int64) (ports.Product, error) {
	var product ports.Product
	err := s.call(ctx, "inventory.GetProduct", func(ctx context.Context) error {
		var err error
		product, err = s.inventory.GetProduct(ctx, id)
		return err
	})
	return product, err
}

func (s *Service) listPromotions(ctx context.Context, productID int64) ([]domain.Promotion, error) {
	var promos []domain.Promotion
	err := s.call(ctx, "promotions.ListActive", func(ctx context.Context) error {
		var err error
		promos, err = s.promotions.ListActive(ctx, productID)
		return err
	})
	return promos, err
}

func (s *Service) adjustStock(ctx context.Context, productID int64, delta int, key string) error {
	return s.call(ctx, "inventory.AdjustStock", func(ctx context.Context) error {
		return s.inventory.AdjustStock(ctx, productID, delta, key)
	})
}

func (s *Service) call(ctx context.Context, name string, op func(context.Context) error) error {
	return retry.Do(ctx, s.policy, transient, op, func(err error, attempt int, wait time.Duration) {
		s.logger.WarnContext(ctx, "retrying external call",
			slog.String("call", name),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})
}

func validateCreate(input ordertypes.CreateOrderInput) error {
	if strings.TrimSpace(input.OwnerID) == "" {
		return domain.ErrInvalidOwner
	}
	if len(input.Items) == 0 {
		return domain.ErrNoItems
	}
	for _, item := range input.Items {
		if item.ProductID <= 0 {
			return domain.ErrInvalidProductID
		}
		if item.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

func lockKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

func stockKey(orderID int64, item int, op string) string {
	return fmt.Sprintf("order-%d-item-%d-%s", orderID, item, op)
}

var _ ports.Service = (*Service)(nil)
