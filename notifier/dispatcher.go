package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/repository"
	"github.com/yeremiapane/bar-order-app/utils"
)

type Options struct {
	Workers        int
	QueueSize      int
	Timeout        time.Duration
	RatePerSecond  float64
	DedupTTL       time.Duration
	BartenderPhone string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = 24 * time.Hour
	}
	return o
}

// Job is one outbound message. Phone is the raw number as stored on the order.
type Job struct {
	DedupKey string
	OrderID  string
	Template Template
	Phone    string
	Body     string
}

// Dispatcher sends order notifications on a bounded worker pool. Callers never block:
// when the queue is full the job is dropped with a warning.
type Dispatcher struct {
	sender  Sender
	dedup   Deduper
	logs    repository.NotificationLogRepository
	limiter *rate.Limiter
	opts    Options

	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	start  sync.Once
}

// NewDispatcher wires the pool; logs may be nil to skip the audit trail.
func NewDispatcher(sender Sender, dedup Deduper, logs repository.NotificationLogRepository, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	if dedup == nil {
		dedup = NewMemoryDeduper()
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		if b := int(opts.RatePerSecond); b > 1 {
			burst = b
		}
	}

	return &Dispatcher{
		sender:  sender,
		dedup:   dedup,
		logs:    logs,
		limiter: rate.NewLimiter(limit, burst),
		opts:    opts,
		jobs:    make(chan Job, opts.QueueSize),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	})
}

// Enqueue reports whether the job was accepted.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		utils.ErrorLogger.WithFields(jobFields(job)).Warn("Notification dropped: dispatcher closed")
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		utils.ErrorLogger.WithFields(jobFields(job)).Warn("Notification queue full, dropping message")
		return false
	}
}

// OrderCreated queues the bartender alert and, when a phone is on file, the guest confirmation.
func (d *Dispatcher) OrderCreated(order *models.Order) {
	if d.opts.BartenderPhone != "" {
		d.Enqueue(Job{
			DedupKey: dedupKey(order.ID, "", models.StatusNew, TemplateBartenderNewOrder),
			OrderID:  order.ID,
			Template: TemplateBartenderNewOrder,
			Phone:    d.opts.BartenderPhone,
			Body:     bartenderNewOrderBody(order),
		})
	} else {
		utils.InfoLogger.WithField("order_id", order.ID).Debug("No bartender phone configured, skipping new-order SMS")
	}

	if order.HasPhone() {
		d.Enqueue(d.guestJob(order, "", models.StatusNew, TemplateGuestConfirmed))
	}
}

// StatusChanged queues the guest template for the new status, if there is one.
func (d *Dispatcher) StatusChanged(order *models.Order, from, to models.OrderStatus) {
	tmpl := templateForStatus(to)
	if tmpl == "" || !order.HasPhone() {
		return
	}
	d.Enqueue(d.guestJob(order, from, to, tmpl))
}

func (d *Dispatcher) guestJob(order *models.Order, from, to models.OrderStatus, tmpl Template) Job {
	return Job{
		DedupKey: dedupKey(order.ID, from, to, tmpl),
		OrderID:  order.ID,
		Template: tmpl,
		Phone:    *order.PhoneNumber,
		Body:     renderGuest(tmpl, order.OrderNumber),
	}
}

func dedupKey(orderID string, from, to models.OrderStatus, tmpl Template) string {
	if from == "" {
		from = "created"
	}
	return fmt.Sprintf("%s:%s:%s:%s", orderID, from, to, tmpl)
}

// Close stops accepting jobs and waits for queued ones until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	// without workers nothing would drain the queue
	d.Start()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.process(job)
	}
}

func (d *Dispatcher) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()

	fields := jobFields(job)

	fresh, err := d.dedup.Claim(ctx, job.DedupKey, d.opts.DedupTTL)
	if err != nil {
		// a dedup outage should not silence notifications
		utils.ErrorLogger.WithFields(fields).Warnf("Notification dedup unavailable: %v", err)
		fresh = true
	}
	if !fresh {
		utils.InfoLogger.WithFields(fields).Info("Duplicate notification suppressed")
		d.audit(job, "", models.NotificationDuplicate, nil)
		return
	}

	to, err := NormalizePhone(job.Phone)
	if err != nil {
		utils.ErrorLogger.WithFields(fields).Warnf("Notification not sent: %v", err)
		d.audit(job, "", models.NotificationSkipped, err)
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.fail(job, to, fmt.Errorf("rate limit wait: %w", err))
		return
	}

	sid, err := d.sender.Send(ctx, to, job.Body)
	switch {
	case errors.Is(err, ErrSenderDisabled):
		d.audit(job, to, models.NotificationSkipped, err)
	case err != nil:
		d.fail(job, to, err)
	default:
		utils.InfoLogger.WithFields(fields).WithField("provider_id", sid).Infof("SMS sent via %s", d.sender.Name())
		d.audit(job, to, models.NotificationSent, nil)
	}
}

func (d *Dispatcher) fail(job Job, to string, err error) {
	utils.ErrorLogger.WithFields(jobFields(job)).Errorf("Failed to send SMS to %s: %v", to, err)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("order_id", job.OrderID)
		scope.SetTag("template", string(job.Template))
		sentry.CaptureException(err)
	})
	d.audit(job, to, models.NotificationFailed, err)
}

func (d *Dispatcher) audit(job Job, to, status string, cause error) {
	if d.logs == nil {
		return
	}
	entry := &models.NotificationLog{
		DedupKey:  job.DedupKey,
		OrderID:   job.OrderID,
		Template:  string(job.Template),
		Recipient: to,
		Status:    status,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.logs.Create(ctx, entry); err != nil {
		utils.ErrorLogger.WithFields(jobFields(job)).Errorf("Error writing notification log: %v", err)
	}
}

func jobFields(job Job) logrus.Fields {
	return logrus.Fields{"order_id": job.OrderID, "template": job.Template}
}
