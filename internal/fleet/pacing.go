package fleet

// パケットペーシングの既定値
const (
	DefaultHeaderOverhead      = 18   // Ethernet ヘッダー 14 + FCS 4 バイト
	DefaultMaxInterPacketDelay = 6000 // パケット間遅延の上限
)

// PacingConfig はペーシング計算の設定
type PacingConfig struct {
	HeaderOverhead      int `yaml:"header_overhead" json:"header_overhead"`
	MaxInterPacketDelay int `yaml:"max_inter_packet_delay" json:"max_inter_packet_delay"`
}

// DefaultPacingConfig はデフォルトのペーシング設定を返す
func DefaultPacingConfig() PacingConfig {
	return PacingConfig{
		HeaderOverhead:      DefaultHeaderOverhead,
		MaxInterPacketDelay: DefaultMaxInterPacketDelay,
	}
}

// Schedule はパケットサイズの列から送信遅延とパケット間遅延を計算する
//
// k 番目のカメラの送信遅延は Σ_{j<k} (P_j + H)。パケット間遅延は
// Σ_all (P + H) を上限で頭打ちにした値で、全カメラ共通。
func Schedule(packetSizes []int, cfg PacingConfig) (delays []int, interPacket int) {
	delays, _, interPacket = Plan(packetSizes, cfg, nil)
	return delays, interPacket
}

// Plan はカメラを順に走査して送信遅延を割り当てる
//
// apply が false を返したカメラ（送信遅延を受け付けないカメラ）は累積に
// 加えず、後続のカメラは同じ遅延を引き継ぐ。パケット間遅延は受け付けた
// カメラだけの累積から求める。apply が nil の場合は全カメラが受け付けたとみなす。
func Plan(packetSizes []int, cfg PacingConfig, apply func(i, delay int) bool) (delays []int, accepted []bool, interPacket int) {
	delays = make([]int, len(packetSizes))
	accepted = make([]bool, len(packetSizes))
	sum := 0
	for i, p := range packetSizes {
		delays[i] = sum
		if apply != nil && !apply(i, sum) {
			continue
		}
		accepted[i] = true
		sum += p + cfg.HeaderOverhead
	}

	interPacket = sum
	if cfg.MaxInterPacketDelay > 0 && interPacket > cfg.MaxInterPacketDelay {
		interPacket = cfg.MaxInterPacketDelay
	}
	return delays, accepted, interPacket
}

// Assignment は1台分のペーシング割り当て
type Assignment struct {
	SessionID         string `json:"session_id"`
	Serial            string `json:"serial"`
	PacketSize        int    `json:"packet_size"`
	TransmissionDelay int    `json:"transmission_delay"`
	Paced             bool   `json:"paced"` // ハードウェアが対応していない場合は false
}

// Pacing は現在のペーシングスケジュール
type Pacing struct {
	Assignments      []Assignment `json:"assignments"`
	InterPacketDelay int          `json:"inter_packet_delay"`
}
