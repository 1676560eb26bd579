package ratings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Lister 列出全部路线 id（含秘密路线）
type Lister interface {
	IDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// Reconciler 定时全量重算，修复并发写或重算失败留下的漂移
type Reconciler struct {
	engine  *Engine
	tours   Lister
	log     *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewReconciler(engine *Engine, tours Lister, l *zap.Logger, timeout time.Duration) *Reconciler {
	if l == nil {
		l = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Reconciler{
		engine:  engine,
		tours:   tours,
		log:     l,
		timeout: timeout,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Result 一轮重算的结果
type Result struct {
	Tours  int `json:"tours"`
	Failed int `json:"failed"`
}

// RunOnce 逐条重算；单条失败不终止整轮
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	ids, err := r.tours.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list tours: %w", err)
	}
	res := Result{Tours: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := r.engine.Recalculate(ctx, id); err != nil {
			res.Failed++
			recalculations.WithLabelValues("failure").Inc()
			r.log.Warn("reconcile tour failed", zap.String("tour", id.Hex()), zap.Error(err))
			continue
		}
		recalculations.WithLabelValues("success").Inc()
	}
	return res, nil
}

// Start 按 cron 表达式（带秒）调度
func (r *Reconciler) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		start := time.Now()
		res, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error("ratings reconcile aborted", zap.Error(err), zap.Int("tours", res.Tours))
			return
		}
		r.log.Info("ratings reconciled",
			zap.Int("tours", res.Tours),
			zap.Int("failed", res.Failed),
			zap.Duration("took", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("schedule reconciler %q: %w", spec, err)
	}
	r.cron.Start()
	r.running = true
	r.log.Info("ratings reconciler started", zap.String("spec", spec))
	return nil
}

// Stop 等待正在执行的一轮结束
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
}
