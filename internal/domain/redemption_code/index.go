package redemption_code

import (
	"sort"

	"github.com/google/uuid"
)

// Index 引き換え前の高速な確認に使うキャッシュの索引
type Index struct {
	Codes   []string               // 全コード（昇順）
	Pins    map[string]int         // PIN付きコード -> PIN
	Targets map[string][]uuid.UUID // 対象プレイヤー付きコード -> 対象
}

// BuildIndex コードから索引を作成
func BuildIndex(codes []*RedemptionCode) Index {
	idx := Index{
		Codes:   make([]string, 0, len(codes)),
		Pins:    map[string]int{},
		Targets: map[string][]uuid.UUID{},
	}
	for _, rc := range codes {
		idx.Codes = append(idx.Codes, rc.code)
		if rc.props.Pin.Enabled() {
			idx.Pins[rc.code] = int(rc.props.Pin)
		}
		if len(rc.target) > 0 {
			idx.Targets[rc.code] = rc.Targets()
		}
	}
	sort.Strings(idx.Codes)
	return idx
}
