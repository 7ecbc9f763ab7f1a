package camera

import (
	"errors"
	"fmt"
	"sort"
)

// ErrBackendNotRegistered は指定したバックエンドが登録されていないことを表す
var ErrBackendNotRegistered = errors.New("バックエンドが登録されていません")

// バックエンド名
const (
	BackendGigE     = "gige"     // 実機の GigE Vision SDK
	BackendEmulated = "emulated" // ソフトウェアで合成するエミュレータ
)

// BackendConfig はバックエンド作成設定
type BackendConfig struct {
	EmulatedCount int            // エミュレートするカメラ台数
	Emulator      EmulatorConfig // エミュレータの詳細設定（Count は EmulatedCount で上書き）
}

// DiscoveryCreator はバックエンド作成関数の型
type DiscoveryCreator func(config BackendConfig) (Discovery, error)

// DiscoveryFactory はバックエンド名からDiscoveryを作成する
type DiscoveryFactory struct {
	creators map[string]DiscoveryCreator
}

// NewDiscoveryFactory は新しいファクトリーを作成する
//
// 実機SDKのバインディングはビルドに含まれていないため、標準では
// エミュレータのみを登録する。
func NewDiscoveryFactory() *DiscoveryFactory {
	factory := &DiscoveryFactory{
		creators: make(map[string]DiscoveryCreator),
	}

	factory.Register(BackendEmulated, NewEmulatedDiscoveryFromConfig)

	return factory
}

// Register はバックエンド作成関数を登録する
func (f *DiscoveryFactory) Register(backend string, creator DiscoveryCreator) {
	f.creators[backend] = creator
}

// Create はバックエンドを作成する
func (f *DiscoveryFactory) Create(backend string, config BackendConfig) (Discovery, error) {
	creator, exists := f.creators[backend]
	if !exists {
		if backend == BackendGigE {
			return nil, fmt.Errorf("%w: %s (登録済み: %v)。実機SDKのアダプターを Register で登録するか、-debug でエミュレートカメラを使用してください",
				ErrBackendNotRegistered, backend, f.SupportedBackends())
		}
		return nil, fmt.Errorf("%w: %s (登録済み: %v)", ErrBackendNotRegistered, backend, f.SupportedBackends())
	}

	return creator(config)
}

// SupportedBackends は登録されているバックエンド名を返す
func (f *DiscoveryFactory) SupportedBackends() []string {
	backends := make([]string, 0, len(f.creators))
	for name := range f.creators {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	return backends
}

// NewEmulatedDiscoveryFromConfig は設定からEmulatedDiscoveryを作成する
func NewEmulatedDiscoveryFromConfig(config BackendConfig) (Discovery, error) {
	if config.EmulatedCount < 0 {
		return nil, fmt.Errorf("エミュレートするカメラ台数が不正です: %d", config.EmulatedCount)
	}

	emu := config.Emulator
	if emu.MaxWidth == 0 && emu.MaxHeight == 0 && emu.FramePeriod == 0 {
		emu = DefaultEmulatorConfig(config.EmulatedCount)
	}
	emu.Count = config.EmulatedCount

	return NewEmulatedDiscovery(emu), nil
}
