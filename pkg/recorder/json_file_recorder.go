package recorder

import (
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Recorder 审计流水，执行器在订单每次状态落定时写一条
type Recorder interface {
	Record(result any) error
}

// AuditEntry 订单审计条目
type AuditEntry struct {
	Time      time.Time `json:"time"`
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	AvgPrice  float64   `json:"avg_price,omitempty"`
	FilledQty float64   `json:"filled_qty,omitempty"`
}

// JSON 文件记录器，按行追加
type JSONFileRecorder struct {
	Path string

	mu sync.Mutex
}

func NewJSONFileRecorder(path string) *JSONFileRecorder {
	return &JSONFileRecorder{Path: path}
}

func (r *JSONFileRecorder) Record(result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = file.Write(data)
	return err
}

// NopRecorder 测试或未配置审计文件时使用
type NopRecorder struct{}

func (NopRecorder) Record(any) error { return nil }
