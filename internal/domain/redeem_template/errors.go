package redeem_template

import "errors"

var (
	// ErrTemplateNotFound テンプレートが見つからないエラー
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateAlreadyExists テンプレートが既に存在するエラー
	ErrTemplateAlreadyExists = errors.New("template already exists")
	// ErrInvalidTemplateName テンプレート名が不正なエラー
	ErrInvalidTemplateName = errors.New("invalid template name")
	// ErrUnknownSyncProperty 同期プロパティ名が不正なエラー
	ErrUnknownSyncProperty = errors.New("unknown sync property")
)
