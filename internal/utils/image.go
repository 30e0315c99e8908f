package utils

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"genai-image-web/internal/oss"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// 默认图片 MIME 类型
	DefaultImageMimeType = "image/png"
	// 二次下载图片的大小上限
	maxDownloadBytes = 32 * 1024 * 1024
	// 默认下载超时
	defaultDownloadTimeout = 30 * time.Second
	// 最多跟随的重定向次数
	maxRedirects = 10
)

// ImageFetcher 根据 URL 获取图片数据
//
// 支持 data: URI、s3:// 对象地址以及 http(s) 地址。
type ImageFetcher struct {
	httpClient   *http.Client
	objects      oss.ObjectReader
	allowPrivate bool
}

// NewImageFetcher 创建图片下载器，httpClient 为 nil 时使用带超时的默认客户端，
// objects 为 nil 时不支持 s3:// 地址。
//
// allowPrivate 为 false 时，每一跳重定向都会重新校验目标地址；
// 默认客户端还会在建立连接时校验实际拨号的 IP，防止 DNS 重绑定。
func NewImageFetcher(httpClient *http.Client, objects oss.ObjectReader, allowPrivate bool) *ImageFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultDownloadTimeout}
		if !allowPrivate {
			httpClient.Transport = guardedTransport()
		}
	}
	if !allowPrivate {
		// 复制一份，避免修改调用方的客户端
		guarded := *httpClient
		guarded.CheckRedirect = checkRedirect
		httpClient = &guarded
	}
	return &ImageFetcher{
		httpClient:   httpClient,
		objects:      objects,
		allowPrivate: allowPrivate,
	}
}

// guardedTransport 拨号前校验目标 IP 的 Transport，不走代理以保证校验的是真实目标
func guardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return transport
}

// dialControl 在 connect 之前检查已解析的地址
func dialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("invalid dial address %q", address)
	}
	if isRestrictedIP(ip) {
		return fmt.Errorf("access to restricted network address: %s", ip.String())
	}
	return nil
}

// checkRedirect 对每一跳重定向重新执行 SSRF 校验
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if _, err := IsSafeURL(req.URL.String()); err != nil {
		return fmt.Errorf("refusing to follow redirect: %w", err)
	}
	return nil
}

// Fetch 下载图片，返回图片数据和 MIME 类型
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(rawURL, "data:"):
		return DecodeDataURI(rawURL)
	case strings.HasPrefix(strings.ToLower(rawURL), "s3://"):
		return f.fetchObject(ctx, rawURL)
	default:
		return f.fetchHTTP(ctx, rawURL)
	}
}

func (f *ImageFetcher) fetchObject(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.objects == nil {
		return nil, "", fmt.Errorf("object storage is not configured for %s", rawURL)
	}
	bucket, key, err := oss.ParseObjectURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	data, contentType, err := f.objects.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, "", err
	}
	return data, ResolveImageMimeType(contentType, data, rawURL), nil
}

func (f *ImageFetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	if !f.allowPrivate {
		if safe, err := IsSafeURL(rawURL); err != nil || !safe {
			return nil, "", fmt.Errorf("refusing to fetch image url: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: status code %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(imageData) > maxDownloadBytes {
		return nil, "", fmt.Errorf("image at %s exceeds %d bytes", rawURL, maxDownloadBytes)
	}

	return imageData, ResolveImageMimeType(resp.Header.Get("Content-Type"), imageData, rawURL), nil
}

// DecodeDataURI 解析 data:<mime>;base64,<data> 形式的图片
func DecodeDataURI(dataURI string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, "", fmt.Errorf("invalid data URI format")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 data: %w", err)
	}

	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	return data, ResolveImageMimeType(mimeType, data, ""), nil
}

// ResolveImageMimeType 依次使用声明的类型、内容嗅探、URL 扩展名确定图片 MIME 类型
func ResolveImageMimeType(declared string, data []byte, rawURL string) string {
	if mt := normalizeMimeType(declared); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if mt := DetectImageMimeType(data); mt != "" {
		return mt
	}
	if rawURL != "" {
		return InferMimeTypeFromURL(rawURL)
	}
	return DefaultImageMimeType
}

// DetectImageMimeType 嗅探数据的 MIME 类型，非图片时返回空字符串
func DetectImageMimeType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mt := normalizeMimeType(mimetype.Detect(data).String())
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	return ""
}

// normalizeMimeType 去掉参数部分并转为小写
func normalizeMimeType(value string) string {
	if value == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return mt
}

// InferMimeTypeFromURL 从 URL 推断 MIME 类型（不区分大小写）
func InferMimeTypeFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return DefaultImageMimeType
}

// IsSafeURL 校验 URL，避免访问内网地址（SSRF）
func IsSafeURL(rawURL string) (bool, error) {
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false, fmt.Errorf("failed to parse url: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	host := parsedURL.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return false, fmt.Errorf("failed to resolve host %q: %w", host, err)
		}
		ips = resolved
	}

	if len(ips) == 0 {
		return false, fmt.Errorf("no ip found for host %q", host)
	}

	for _, ip := range ips {
		if isRestrictedIP(ip) {
			return false, fmt.Errorf("access to restricted network address: %s", ip.String())
		}
	}

	return true, nil
}

func isRestrictedIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// TruncateForLog 截断长字符串用于日志，避免打印过长内容（如 base64）
//
// max 按字节计算，截断点落在 UTF-8 字符边界上。
func TruncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeBoundary(s, max)]
	}
	return s[:runeBoundary(s, max-3)] + "..."
}

// runeBoundary 返回不超过 n 的最大字符边界
func runeBoundary(s string, n int) int {
	if n < 0 {
		return 0
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// MaskAPIKey 隐藏 API Key 的敏感部分
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
