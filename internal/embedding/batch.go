package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量文本分批并行处理，结果顺序与输入一致
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 分批并行生成向量
// 任一批次失败时取消其余批次，返回最先发生的错误
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := splitIntoBatches(texts, p.batchSize)
	workers := p.maxWorkers
	if workers > len(batches) {
		workers = len(batches)
	}

	wp := workerpool.New(workers)
	results := make([][][]float32, len(batches))
	var processingErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() {
			processingErr = err
			cancel()
		})
	}

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if err := ctx.Err(); err != nil {
				fail(contextError(err))
				return
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err != nil {
				fail(fmt.Errorf("batch %d: %w", i, err))
				return
			}
			if len(vectors) != len(batch) {
				fail(NewEmbeddingError(ErrCodeBadResponse,
					fmt.Sprintf("batch %d: expected %d embeddings, got %d", i, len(batch), len(vectors))))
				return
			}
			results[i] = vectors
		})
	}
	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	allVectors := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		allVectors = append(allVectors, vectors...)
	}
	if err := checkVectors(allVectors, len(texts), 0); err != nil {
		return nil, err
	}
	return allVectors, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
