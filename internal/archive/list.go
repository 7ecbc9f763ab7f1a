package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// File は保存済みファイルの情報
type File struct {
	Name     string    `json:"name"`      // ファイル名
	FilePath string    `json:"file_path"` // ファイルパス
	FileSize int64     `json:"file_size"` // ファイルサイズ
	Date     time.Time `json:"date"`      // 更新日時
}

var archiveExtensions = map[string]bool{
	".tiff": true,
	".fits": true,
	".png":  true,
}

// List は保存ディレクトリ以下（日付サブディレクトリを含む）の保存ファイル一覧を新しい順で返す
func List(dir string) ([]File, error) {
	files := []File{}

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				// ディレクトリが存在しない場合は空のリストを返す
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() {
			// 日付サブディレクトリの1階層まで
			if path != dir && filepath.Dir(path) != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !archiveExtensions[filepath.Ext(entry.Name())] {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files = append(files, File{
			Name:     entry.Name(),
			FilePath: path,
			FileSize: info.Size(),
			Date:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ディレクトリの読み取りに失敗: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Date.After(files[j].Date)
	})
	return files, nil
}
