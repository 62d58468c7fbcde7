package models

// ChangeKind はジャーナル内のフィールド変更の種類です
type ChangeKind int

const (
	UnknownChange ChangeKind = iota
	AttributeChange
	CustomFieldChange
	AttachmentChange
	RelationChange
)

// Change は1件のフィールド変更です。Old/Newはnilの場合があります
type Change struct {
	Kind     ChangeKind
	Property string
	Name     string
	Old      *string
	New      *string
}

// ParseChange はRedmineのjournal detailを種類付きのChangeに変換します
func ParseChange(property, name string, oldValue, newValue *string) Change {
	kind := UnknownChange
	switch property {
	case "attr":
		kind = AttributeChange
	case "cf":
		kind = CustomFieldChange
	case "attachment":
		kind = AttachmentChange
	case "relation":
		kind = RelationChange
	}

	return Change{
		Kind:     kind,
		Property: property,
		Name:     name,
		Old:      oldValue,
		New:      newValue,
	}
}

// OldValue はOldを文字列で返します（未設定の場合は空）
func (c Change) OldValue() string {
	if c.Old == nil {
		return ""
	}
	return *c.Old
}

// NewValue はNewを文字列で返します（未設定の場合は空）
func (c Change) NewValue() string {
	if c.New == nil {
		return ""
	}
	return *c.New
}
