package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fragmentSource 后端的分片读取器
type fragmentSource interface {
	// next 返回下一段文本，结束时返回io.EOF；空字符串会被跳过
	next() (string, error)
	// close 释放底层连接
	close() error
}

// Stream 流式回答
// 只能顺序读取一次，读到io.EOF或出错后连接自动释放；
// 中途放弃时必须调用Close
type Stream struct {
	parent  context.Context
	src     fragmentSource
	dog     *watchdog
	cancel  context.CancelFunc
	mu      sync.Mutex // 串行化Recv
	err     error      // 终止状态：io.EOF或失败原因
	closed  atomic.Bool
	release sync.Once
}

// newStream 创建流，cancel用于中断底层请求
func newStream(parent context.Context, src fragmentSource, dog *watchdog, cancel context.CancelFunc) *Stream {
	if cancel == nil {
		cancel = func() {}
	}
	return &Stream{
		parent: parent,
		src:    src,
		dog:    dog,
		cancel: cancel,
	}
}

// Recv 读取下一段回答，全部读完后返回io.EOF
func (s *Stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return "", ErrStreamClosed
	}
	if s.err != nil {
		return "", s.err
	}

	for {
		fragment, err := s.src.next()
		if err != nil {
			if s.closed.Load() {
				return "", ErrStreamClosed
			}
			if errors.Is(err, io.EOF) {
				s.err = io.EOF
			} else {
				s.err = classifyError(s.parent, s.dog, err)
			}
			s.releaseResources()
			return "", s.err
		}

		s.dog.reset()
		if fragment != "" {
			return fragment, nil
		}
	}
}

// Close 关闭流并释放连接，可重复调用，可与Recv并发调用
func (s *Stream) Close() error {
	s.closed.Store(true)
	s.releaseResources()
	return nil
}

// Drain 读完剩余内容，依次写入w（可为nil），返回读到的全部文本
func (s *Stream) Drain(w io.Writer) (string, error) {
	var sb strings.Builder
	for {
		fragment, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}

		sb.WriteString(fragment)
		if w != nil {
			if _, err := io.WriteString(w, fragment); err != nil {
				s.Close()
				return sb.String(), err
			}
		}
	}
}

func (s *Stream) releaseResources() {
	s.release.Do(func() {
		s.dog.stop()
		s.src.close()
		s.cancel()
	})
}

// NewStaticStream 创建内容固定的流，不涉及任何后端调用
func NewStaticStream(fragments ...string) *Stream {
	return newStream(context.Background(), &sliceSource{fragments: fragments}, nil, nil)
}

// NewFailingStream 创建先输出fragments再以err结束的流
func NewFailingStream(err error, fragments ...string) *Stream {
	return newStream(context.Background(), &sliceSource{fragments: fragments, err: err}, nil, nil)
}

// sliceSource 基于切片的分片读取器
type sliceSource struct {
	fragments []string
	err       error
	pos       int
}

func (s *sliceSource) next() (string, error) {
	if s.pos < len(s.fragments) {
		s.pos++
		return s.fragments[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *sliceSource) close() error {
	return nil
}

// watchdog 在timeout内没有进展时取消请求
// 覆盖等待响应头以及两段输出之间的空闲时间
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
	fired   atomic.Bool
	stopped atomic.Bool
}

// startWatchdog 启动看门狗，timeout<=0时不计时
func startWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			if !w.stopped.Load() {
				w.fired.Store(true)
				cancel()
			}
		})
	}
	return w
}

func (w *watchdog) reset() {
	if w == nil || w.timer == nil || w.fired.Load() || w.stopped.Load() {
		return
	}
	w.timer.Reset(w.timeout)
}

func (w *watchdog) stop() {
	if w == nil || w.timer == nil {
		return
	}
	w.stopped.Store(true)
	w.timer.Stop()
}

func (w *watchdog) expired() bool {
	return w != nil && w.fired.Load()
}
