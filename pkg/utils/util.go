package utils

// DereferenceSeed は、int64のポインタを安全にデリファレンスします。
// ポインタがnilの場合は0を返します。
func DereferenceSeed(seed *int64) int64 {
	if seed == nil {
		return 0
	}
	return *seed
}

// SeedToPtrInt32 は int64 のシードを Gemini SDK 用の *int32 に変換します。
// 値がint32の範囲を超える場合は上位ビットが切り捨てられますが、
// これはシード値の再現性において期待される挙動です。
func SeedToPtrInt32(seed int64) *int32 {
	v := int32(seed)
	return &v
}

// SeedToPtrInt64 は値をポインタに変換します。
func SeedToPtrInt64(seed int64) *int64 {
	return &seed
}
