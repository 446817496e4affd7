package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/embedding"
	"github.com/fyerfyer/transcript-qa/internal/llm"
	"github.com/fyerfyer/transcript-qa/internal/vectordb"
)

// ErrNotIndexed 尚未完成任何一次索引就发起查询
var ErrNotIndexed = errors.New("no source has been indexed yet")

// IndexReport 一次索引的结果
type IndexReport struct {
	RunID     string        // 本次索引的唯一标识
	Source    string        // 来源标识
	Documents int           // 加载的文档数
	Segments  int           // 写入索引的段落数
	Dimension int           // 向量维数
	IDs       []int64       // 分配的条目ID
	Duration  time.Duration // 总耗时
}

// Pipeline 问答流水线
// Index按 加载→分段→向量化→写入索引 顺序执行，Query按 检索→生成 顺序执行；
// Index持有写锁，Query在检索期间持有读锁
type Pipeline struct {
	loader    document.Loader
	splitter  document.Splitter
	embedder  embedding.Client
	batch     *embedding.BatchProcessor
	index     vectordb.Repository
	retriever *Retriever
	rag       *llm.RAGService

	loadOptions document.LoadOptions
	topK        int
	batchSize   int
	maxWorkers  int
	hooks       Hooks
	logger      *logrus.Logger

	mu      sync.RWMutex
	indexed bool
}

// PipelineOption 流水线配置选项
type PipelineOption func(*Pipeline)

// WithLoadOptions 设置文档加载选项
func WithLoadOptions(opts document.LoadOptions) PipelineOption {
	return func(p *Pipeline) {
		p.loadOptions = opts
	}
}

// WithTopK 设置检索结果数量
func WithTopK(k int) PipelineOption {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithBatchSize 设置向量化批大小
func WithBatchSize(size int) PipelineOption {
	return func(p *Pipeline) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithMaxWorkers 设置向量化并发数
func WithMaxWorkers(workers int) PipelineOption {
	return func(p *Pipeline) {
		if workers > 0 {
			p.maxWorkers = workers
		}
	}
}

// WithHooks 添加生命周期Hook
func WithHooks(hooks ...Hook) PipelineOption {
	return func(p *Pipeline) {
		p.hooks = append(p.hooks, hooks...)
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline 创建问答流水线
func NewPipeline(
	loader document.Loader,
	splitter document.Splitter,
	embedder embedding.Client,
	index vectordb.Repository,
	rag *llm.RAGService,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		loader:      loader,
		splitter:    splitter,
		embedder:    embedder,
		index:       index,
		rag:         rag,
		loadOptions: document.DefaultLoadOptions(),
		topK:        DefaultTopK,
		batchSize:   16,
		maxWorkers:  4,
		logger:      logrus.New(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.batch = embedding.NewBatchProcessor(embedder, p.batchSize, p.maxWorkers)
	p.retriever = NewRetriever(embedder, index)
	return p
}

// Index 加载并索引来源
// 任一阶段失败都会中止，索引不会被写入任何条目
func (p *Pipeline) Index(ctx context.Context, source string) (*IndexReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	report := &IndexReport{
		RunID:  uuid.New().String(),
		Source: source,
	}

	// 1. 加载
	p.emit(Event{Stage: StageLoadStart, RunID: report.RunID, Source: source})
	stageStart := time.Now()
	docs, err := p.loader.Load(ctx, source, p.loadOptions)
	p.emit(Event{Stage: StageLoadDone, RunID: report.RunID, Source: source, Count: len(docs), Duration: time.Since(stageStart), Err: err})
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	report.Documents = len(docs)

	// 2. 分段
	stageStart = time.Now()
	var segments []document.Segment
	for _, doc := range docs {
		docSegments, err := p.splitter.Split(doc)
		if err != nil {
			p.emit(Event{Stage: StageSplitDone, RunID: report.RunID, Source: source, Err: err})
			return nil, fmt.Errorf("failed to split document %s: %w", doc.ID, err)
		}
		// 只含空白的段落没有可检索的内容
		for _, seg := range docSegments {
			if strings.TrimSpace(seg.Text) != "" {
				segments = append(segments, seg)
			}
		}
	}
	p.emit(Event{Stage: StageSplitDone, RunID: report.RunID, Source: source, Count: len(segments), Duration: time.Since(stageStart)})

	// 3. 向量化
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	p.emit(Event{Stage: StageEmbedStart, RunID: report.RunID, Source: source, Count: len(texts)})
	stageStart = time.Now()
	vectors, err := p.batch.Process(ctx, texts)
	p.emit(Event{Stage: StageEmbedDone, RunID: report.RunID, Source: source, Count: len(vectors), Duration: time.Since(stageStart), Err: err})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d segments", len(vectors), len(segments))
	}

	// 4. 一次性写入索引
	stageStart = time.Now()
	if len(segments) > 0 {
		entries := make([]vectordb.Entry, len(segments))
		for i := range segments {
			entries[i] = vectordb.Entry{Vector: vectors[i], Segment: segments[i]}
		}
		ids, err := p.index.Add(entries)
		if err != nil {
			p.emit(Event{Stage: StageIndexDone, RunID: report.RunID, Source: source, Err: err})
			return nil, fmt.Errorf("failed to add entries to index: %w", err)
		}
		report.IDs = ids
	}
	report.Segments = len(segments)
	report.Dimension = p.index.Dimension()
	report.Duration = time.Since(start)
	p.emit(Event{Stage: StageIndexDone, RunID: report.RunID, Source: source, Count: p.index.Count(), Duration: time.Since(stageStart)})

	p.indexed = true
	p.logger.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"source":    source,
		"documents": report.Documents,
		"segments":  report.Segments,
		"elapsed":   report.Duration.String(),
	}).Info("Source indexed")

	return report, nil
}

// Query 检索上下文并开始生成回答
// 调用方必须读完或关闭返回的Answer
func (p *Pipeline) Query(ctx context.Context, question string) (*Answer, error) {
	if err := checkQuestion(question); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	result, err := p.retrieve(ctx, runID, question)
	if err != nil {
		return nil, err
	}

	stream, err := p.rag.AnswerStream(ctx, question, result.Texts())
	if err != nil {
		p.emit(Event{Stage: StageStreamDone, RunID: runID, Question: question, Err: err})
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Answer{
		RunID:    runID,
		Question: question,
		Result:   result,
		stream:   stream,
		emit:     p.emit,
		start:    time.Now(),
	}, nil
}

func (p *Pipeline) retrieve(ctx context.Context, runID, question string) (*RetrievalResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.indexed {
		return nil, ErrNotIndexed
	}

	p.emit(Event{Stage: StageQueryStart, RunID: runID, Question: question})
	start := time.Now()
	result, err := p.retriever.Retrieve(ctx, question, p.topK)
	p.emit(Event{Stage: StageRetrieveDone, RunID: runID, Question: question, Count: result.Len(), Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Run 先索引来源再回答问题，回答片段到达后立即写入w，结束时追加换行
// 已经写出的内容在出错时不会撤回
func (p *Pipeline) Run(ctx context.Context, source, question string, w io.Writer) (*Answer, error) {
	if err := checkQuestion(question); err != nil {
		return nil, err
	}
	if _, err := p.Index(ctx, source); err != nil {
		return nil, err
	}

	answer, err := p.Query(ctx, question)
	if err != nil {
		return nil, err
	}
	defer answer.Close()

	if _, err := answer.WriteTo(w); err != nil {
		return answer, err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return answer, err
	}
	return answer, nil
}

// checkQuestion 空问题在任何加载或模型调用之前拒绝
func checkQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return llm.NewGenerationError(llm.ErrCodeEmptyPrompt, llm.ErrMsgEmptyPrompt)
	}
	return nil
}

// Indexed 是否已经完成过索引
func (p *Pipeline) Indexed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.indexed
}

// Close 释放向量索引
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index.Close()
}

func (p *Pipeline) emit(event Event) {
	if len(p.hooks) == 0 {
		return
	}
	event.Time = time.Now()
	p.hooks.Observe(event)
}

// Answer 一次查询的结果：检索结果和流式回答
// 回答只能读取一次
type Answer struct {
	RunID    string
	Question string
	Result   *RetrievalResult

	stream    *llm.Stream
	emit      func(Event)
	start     time.Time
	fragments int
	text      []byte
	finished  sync.Once
}

// Recv 读取下一段回答，结束时返回io.EOF
func (a *Answer) Recv() (string, error) {
	fragment, err := a.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			a.finish(nil)
		} else if !errors.Is(err, llm.ErrStreamClosed) {
			a.finish(err)
		}
		return "", err
	}

	a.fragments++
	a.text = append(a.text, fragment...)
	a.emit(Event{Stage: StageStreamChunk, RunID: a.RunID, Question: a.Question, Fragment: fragment, Count: a.fragments})
	return fragment, nil
}

// WriteTo 读完剩余回答并依次写入w
func (a *Answer) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for {
		fragment, err := a.Recv()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		n, err := io.WriteString(w, fragment)
		written += int64(n)
		if err != nil {
			a.Close()
			return written, err
		}
	}
}

// Text 返回目前已经读到的回答
func (a *Answer) Text() string {
	return string(a.text)
}

// Close 关闭回答流，释放后端连接
func (a *Answer) Close() error {
	return a.stream.Close()
}

func (a *Answer) finish(err error) {
	a.finished.Do(func() {
		a.emit(Event{
			Stage:    StageStreamDone,
			RunID:    a.RunID,
			Question: a.Question,
			Count:    a.fragments,
			Duration: time.Since(a.start),
			Err:      err,
		})
	})
}
