package document

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	defaultYouTubeBaseURL = "https://www.youtube.com"
	playerResponseMarker  = "ytInitialPlayerResponse = "
	defaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeConfig YouTube字幕加载器配置
type YouTubeConfig struct {
	BaseURL    string        // YouTube站点地址，测试时可替换
	Timeout    time.Duration // 单次请求超时
	UserAgent  string        // 请求使用的User-Agent
	HTTPClient *http.Client  // 自定义HTTP客户端（可选）
}

// YouTubeLoader 通过视频页面中的字幕轨道获取视频字幕
type YouTubeLoader struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewYouTubeLoader 创建YouTube字幕加载器
func NewYouTubeLoader(cfg YouTubeConfig) *YouTubeLoader {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYouTubeBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &YouTubeLoader{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    client,
	}
}

// Name 返回加载器名称
func (l *YouTubeLoader) Name() string {
	return "youtube"
}

// Supports 判断来源是否为YouTube视频
func (l *YouTubeLoader) Supports(source string) bool {
	_, ok := ParseVideoID(source)
	return ok
}

// ParseVideoID 从视频URL或裸ID中解析视频ID
// 与本地已存在的路径同名的裸ID按本地文件处理
func ParseVideoID(source string) (string, bool) {
	source = strings.TrimSpace(source)
	if videoIDPattern.MatchString(source) {
		if _, err := os.Stat(source); err == nil {
			return "", false
		}
		return source, true
	}

	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Split(strings.Trim(u.Path, "/"), "/")[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.Split(strings.TrimPrefix(u.Path, prefix), "/")[0]
				break
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// playerResponse 视频页面中ytInitialPlayerResponse的相关字段
type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	VideoDetails struct {
		VideoID          string `json:"videoId"`
		Title            string `json:"title"`
		Author           string `json:"author"`
		LengthSeconds    string `json:"lengthSeconds"`
		ViewCount        string `json:"viewCount"`
		ShortDescription string `json:"shortDescription"`
	} `json:"videoDetails"`
	Microformat struct {
		Renderer struct {
			PublishDate string `json:"publishDate"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
}

// captionTrack 字幕轨道
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" 表示自动生成
}

// timedText 字幕XML
type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// Load 获取视频字幕
func (l *YouTubeLoader) Load(ctx context.Context, source string, opts LoadOptions) ([]Document, error) {
	videoID, ok := ParseVideoID(source)
	if !ok {
		return nil, newLoadError(source, ErrUnsupportedSource)
	}

	lang := opts.Language
	if lang == "" {
		lang = DefaultLoadOptions().Language
	}

	player, err := l.fetchPlayerResponse(ctx, videoID, lang)
	if err != nil {
		return nil, newLoadError(source, err)
	}

	track, err := selectTrack(player.Captions.Renderer.CaptionTracks, lang)
	if err != nil {
		return nil, newLoadError(source, err)
	}

	text, err := l.fetchTranscript(ctx, track.BaseURL)
	if err != nil {
		return nil, newLoadError(source, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, newLoadError(source, ErrEmptyContent)
	}

	meta := map[string]string{
		MetaSource:   videoID,
		MetaLanguage: track.LanguageCode,
	}
	if opts.IncludeMetadata {
		details := player.VideoDetails
		meta[MetaTitle] = details.Title
		meta[MetaAuthor] = details.Author
		meta["view_count"] = details.ViewCount
		meta["length_seconds"] = details.LengthSeconds
		meta["description"] = details.ShortDescription
		meta["publish_date"] = player.Microformat.Renderer.PublishDate
	}

	return []Document{{
		ID:       videoID,
		Content:  text,
		Metadata: meta,
	}}, nil
}

// fetchPlayerResponse 下载视频页面并解析播放器数据
func (l *YouTubeLoader) fetchPlayerResponse(ctx context.Context, videoID, lang string) (*playerResponse, error) {
	pageURL := fmt.Sprintf("%s/watch?v=%s", l.baseURL, url.QueryEscape(videoID))
	body, err := l.get(ctx, pageURL, lang)
	if err != nil {
		return nil, err
	}

	idx := strings.Index(body, playerResponseMarker)
	if idx < 0 {
		return nil, fmt.Errorf("player response not found in video page")
	}

	// Decoder只读取第一个完整的JSON值，忽略后面的脚本内容
	var player playerResponse
	dec := json.NewDecoder(strings.NewReader(body[idx+len(playerResponseMarker):]))
	if err := dec.Decode(&player); err != nil {
		return nil, fmt.Errorf("failed to parse player response: %w", err)
	}

	if status := player.PlayabilityStatus.Status; status != "" && status != "OK" {
		return nil, fmt.Errorf("video unavailable (%s): %s", status, player.PlayabilityStatus.Reason)
	}
	return &player, nil
}

// selectTrack 选择字幕轨道：先精确匹配语言，再按前缀匹配（en 匹配 en-US）
// 同一语言下人工字幕优先于自动生成字幕
func selectTrack(tracks []captionTrack, lang string) (captionTrack, error) {
	if len(tracks) == 0 {
		return captionTrack{}, ErrNoTranscript
	}

	lang = strings.ToLower(lang)
	var prefixMatch *captionTrack
	var asrMatch *captionTrack
	for i := range tracks {
		code := strings.ToLower(tracks[i].LanguageCode)
		switch {
		case code == lang && tracks[i].Kind != "asr":
			return tracks[i], nil
		case code == lang:
			if asrMatch == nil {
				asrMatch = &tracks[i]
			}
		case strings.HasPrefix(code, lang+"-") && prefixMatch == nil:
			prefixMatch = &tracks[i]
		}
	}
	if asrMatch != nil {
		return *asrMatch, nil
	}
	if prefixMatch != nil {
		return *prefixMatch, nil
	}

	available := make([]string, 0, len(tracks))
	for _, t := range tracks {
		available = append(available, t.LanguageCode)
	}
	return captionTrack{}, fmt.Errorf("%w for language %q (available: %s)",
		ErrNoTranscript, lang, strings.Join(available, ", "))
}

// fetchTranscript 下载字幕XML并拼接为纯文本
func (l *YouTubeLoader) fetchTranscript(ctx context.Context, trackURL string) (string, error) {
	if strings.HasPrefix(trackURL, "/") {
		trackURL = l.baseURL + trackURL
	}

	body, err := l.get(ctx, trackURL, "")
	if err != nil {
		return "", err
	}

	var tt timedText
	if err := xml.Unmarshal([]byte(body), &tt); err != nil {
		return "", fmt.Errorf("failed to parse transcript: %w", err)
	}

	parts := make([]string, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		// 字幕内容可能被二次转义，例如 &amp;#39;
		text := html.UnescapeString(t.Text)
		text = strings.Join(strings.Fields(text), " ")
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// get 发送GET请求并返回响应体
func (l *YouTubeLoader) get(ctx context.Context, target, lang string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return string(body), nil
}
