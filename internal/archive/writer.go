package archive

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/astrogo/fitsio"
	"golang.org/x/image/tiff"

	"beamview/internal/frame"
)

// Metadata はFITSヘッダーに記録する取得情報
type Metadata struct {
	Camera   string
	Serial   string
	Gain     int
	Exposure float64 // ms
	Shot     int
}

// Save はフレームを dir/filename に書き出し、書き出したパスを返す
//
// ディレクトリが無ければ作成する。
func Save(dir, filename string, f *frame.Frame, s Settings, meta Metadata) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("保存ディレクトリの作成に失敗: %w", err)
	}

	path := filepath.Join(dir, filename)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("ファイルの作成に失敗: %w", err)
	}

	switch {
	case s.LowRes:
		err = EncodePNG(file, f)
	case s.Format == FormatFITS:
		err = EncodeFITS(file, f, meta)
	default:
		err = EncodeTIFF(file, f)
	}
	if cerr := file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%s の書き出しに失敗: %w", filename, err)
	}

	return path, nil
}

// EncodeTIFF は生の画素値を非圧縮グレースケール TIFF として書き出す
func EncodeTIFF(w io.Writer, f *frame.Frame) error {
	return tiff.Encode(w, f.Image(), &tiff.Options{Compression: tiff.Uncompressed})
}

// EncodePNG はフルスケールを8bitに縮めた PNG を書き出す
func EncodePNG(w io.Writer, f *frame.Frame) error {
	return png.Encode(w, f.Scaled8(0, float64(f.FullScale())))
}

// EncodeFITS は生の画素値を BITPIX=32 の FITS として書き出す
//
// 16bit の符号なし値をそのまま保持するため32bit整数で格納する。
func EncodeFITS(w io.Writer, f *frame.Frame, meta Metadata) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("FITSファイルの作成に失敗: %w", err)
	}
	defer fits.Close()

	img := fitsio.NewImage(32, []int{f.Width, f.Height})
	defer img.Close()

	cards := []fitsio.Card{
		{Name: "CAMERA", Value: meta.Camera, Comment: "camera name"},
		{Name: "SERIAL", Value: meta.Serial, Comment: "camera serial number"},
		{Name: "GAIN", Value: meta.Gain, Comment: "raw gain"},
		{Name: "EXPTIME", Value: meta.Exposure / 1000, Comment: "exposure time [s]"},
		{Name: "BITDEPTH", Value: f.BitDepth, Comment: "sensor bit depth"},
		{Name: "XOFFSET", Value: f.OffsetX, Comment: "acquisition offset x [px]"},
		{Name: "YOFFSET", Value: f.OffsetY, Comment: "acquisition offset y [px]"},
		{Name: "SHOT", Value: meta.Shot, Comment: "shot number"},
		{Name: "DATE-OBS", Value: f.Timestamp.UTC().Format(time.RFC3339Nano), Comment: "frame timestamp"},
	}
	if err := img.Header().Append(cards...); err != nil {
		return fmt.Errorf("FITSヘッダーの書き込みに失敗: %w", err)
	}

	data := make([]int32, len(f.Pix))
	for i, v := range f.Pix {
		data[i] = int32(v)
	}
	if err := img.Write(data); err != nil {
		return fmt.Errorf("FITS画像データの書き込みに失敗: %w", err)
	}

	return fits.Write(img)
}

// Load は保存済みの TIFF / FITS / PNG ファイルを読み込む
func Load(path string, bitDepth int) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ファイルのオープンに失敗: %w", err)
	}
	defer file.Close()

	switch filepath.Ext(path) {
	case ".fits":
		return decodeFITS(file, bitDepth)
	case ".png":
		img, err := png.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("PNGのデコードに失敗: %w", err)
		}
		return frame.FromImage(img, 8), nil
	default:
		img, err := tiff.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("TIFFのデコードに失敗: %w", err)
		}
		return frame.FromImage(img, bitDepth), nil
	}
}

func decodeFITS(r io.Reader, bitDepth int) (*frame.Frame, error) {
	fits, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("FITSのオープンに失敗: %w", err)
	}
	defer fits.Close()

	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("先頭HDUが画像ではありません")
	}
	axes := img.Header().Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("2次元画像ではありません: %v", axes)
	}

	// fitsio は渡したスライスの容量に読み込むため事前に確保する
	data := make([]int32, axes[0]*axes[1])
	if err := img.Read(&data); err != nil {
		return nil, fmt.Errorf("FITS画像データの読み込みに失敗: %w", err)
	}

	f := frame.New(axes[0], axes[1], bitDepth)
	if len(data) != len(f.Pix) {
		return nil, fmt.Errorf("画素数が一致しません: %d != %d", len(data), len(f.Pix))
	}
	for i, v := range data {
		f.Pix[i] = uint16(v)
	}
	if card := img.Header().Get("XOFFSET"); card != nil {
		if v, ok := card.Value.(int); ok {
			f.OffsetX = v
		}
	}
	if card := img.Header().Get("YOFFSET"); card != nil {
		if v, ok := card.Value.(int); ok {
			f.OffsetY = v
		}
	}
	return f, nil
}
