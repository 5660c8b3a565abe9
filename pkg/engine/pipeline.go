// pkg/engine/pipeline.go
package engine

import (
	"errors"
	"sync"
	"time"

	"ImpactRadar/pkg/alert"
	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/consensus"
	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/extract"
	"ImpactRadar/pkg/impact"
	"ImpactRadar/pkg/jobs"
)

var (
	// ErrSignalNotReady 文章的 Signal 尚未落库，影响分任务需要稍后重试
	ErrSignalNotReady = errors.New("文章信号尚未生成")
	// ErrInvalidArticle 入库文章缺少必填字段
	ErrInvalidArticle = errors.New("文章缺少必填字段")
)

// Pipeline 新闻打分流水线：入库、提取信号、共识加成、计算个性化影响分
type Pipeline struct {
	store     *database.Store
	queue     jobs.Queue
	cfg       config.Scoring
	extractor *extract.Extractor
	consensus *consensus.Calculator
	impacts   *impact.Calculator
	alerts    *alert.Synthesizer
	publisher AlertPublisher
	locks     *keyedMutex
	now       func() time.Time
}

// NewPipeline 创建流水线。queue 为 nil 时分析完成后不再投递后续任务。
func NewPipeline(store *database.Store, queue jobs.Queue, cfg config.Scoring) *Pipeline {
	return &Pipeline{
		store:     store,
		queue:     queue,
		cfg:       cfg,
		extractor: extract.New(cfg),
		consensus: consensus.New(cfg),
		impacts:   impact.New(cfg),
		alerts:    alert.NewSynthesizer(store, cfg),
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// SetQueue 设置任务队列。队列和处理函数互相引用，组装时先建流水线再注入队列。
func (p *Pipeline) SetQueue(queue jobs.Queue) {
	p.queue = queue
}

// SetPublisher 设置提醒投递端
func (p *Pipeline) SetPublisher(publisher AlertPublisher) {
	p.publisher = publisher
}

// Extractor 流水线使用的信号提取器
func (p *Pipeline) Extractor() *extract.Extractor {
	return p.extractor
}

// keyedMutex 按键串行化：用户的影响分计算、事件簇的共识、同代码同分类的归簇
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock 获取 key 对应的锁，返回解锁函数
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
