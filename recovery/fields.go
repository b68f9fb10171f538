package recovery

import "slices"

// Field is a logical message field that may be stored under different column names
// depending on product version and migration history.
type Field string

const (
	FieldSubject      Field = "subject"
	FieldSender       Field = "sender"
	FieldSenderName   Field = "sender_name"
	FieldBody         Field = "body"
	FieldHTML         Field = "html"
	FieldNativeBody   Field = "native_body"
	FieldPropertyBlob Field = "property_blob"
	FieldLargeBlob    Field = "large_blob"
	FieldDate         Field = "date"
	FieldFolder       Field = "folder"
	FieldMessageID    Field = "message_id"
	FieldDisplayTo    Field = "display_to"
	FieldMessageClass Field = "message_class"
)

// FieldTable lists candidate column names per logical field. Candidates are tried in
// order and the first column holding a non-empty value wins.
type FieldTable map[Field][]string

// DefaultFieldTable covers the column names seen in Exchange 2010 to 2019 stores
// and in exports that use MAPI property tags as column names.
func DefaultFieldTable() FieldTable {
	return FieldTable{
		FieldSubject:      {"Subject", "subject", "p0037001F", "PR_SUBJECT", "SubjectPrefix"},
		FieldSender:       {"SenderEmailAddress", "sender_email", "p0C1F001F", "From", "sender"},
		FieldSenderName:   {"SenderName", "sender_name", "p0C1A001F", "FromName"},
		FieldBody:         {"Body", "body", "p1000001F", "BodyText"},
		FieldHTML:         {"Html", "html", "p1013001F", "BodyHtml", "HtmlBody"},
		FieldNativeBody:   {"NativeBody"},
		FieldPropertyBlob: {"PropertyBlob"},
		FieldLargeBlob:    {"LargePropertyValueBlob"},
		FieldDate:         {"DateReceived", "MessageDeliveryTime", "p0E060040", "ReceivedTime", "DateSent", "ClientSubmitTime", "p00390040", "SentTime"},
		FieldFolder:       {"FolderId", "folder_id", "ParentFolderId"},
		FieldMessageID:    {"InternetMessageId", "MessageId", "p1035001F"},
		FieldDisplayTo:    {"DisplayTo", "display_to", "p0E04001F", "To"},
		FieldMessageClass: {"MessageClass", "message_class", "p001A001F"},
	}
}

// columnSet is a FieldTable narrowed to the columns of one table.
type columnSet map[Field][]string

func (ft FieldTable) narrow(columns []string) columnSet {
	set := make(columnSet, len(ft))
	for field, candidates := range ft {
		for _, c := range candidates {
			if slices.Contains(columns, c) {
				set[field] = append(set[field], c)
			}
		}
	}
	return set
}

// empty reports whether none of the fields that carry message content are present.
func (cs columnSet) empty() bool {
	for _, f := range []Field{FieldSubject, FieldSender, FieldBody, FieldHTML, FieldNativeBody, FieldPropertyBlob, FieldLargeBlob} {
		if len(cs[f]) > 0 {
			return false
		}
	}
	return true
}
