package redeem_property

import "errors"

// ErrInvalidIndex リストのインデックスが範囲外のエラー
var ErrInvalidIndex = errors.New("index out of range")

// Append 末尾に追加した新しいスライスを返す
func Append(list []string, value string) []string {
	out := cloneStrings(list)
	return append(out, value)
}

// Set 指定位置を置き換えた新しいスライスを返す
func Set(list []string, index int, value string) ([]string, error) {
	if index < 0 || index >= len(list) {
		return nil, ErrInvalidIndex
	}
	out := cloneStrings(list)
	out[index] = value
	return out, nil
}

// Remove 指定位置を取り除いた新しいスライスを返す
func Remove(list []string, index int) ([]string, error) {
	if index < 0 || index >= len(list) {
		return nil, ErrInvalidIndex
	}
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...), nil
}
