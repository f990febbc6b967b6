package imgutil

// CompressToJPEG は画像データ（PNG, GIF, JPEG等）をJPEG形式に圧縮します。
// 透過情報は失われるため、マスク画像には使用しないでください。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	buf, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return buf.EncodeLossy(quality)
}
