package document

// IsComplete reports whether recipients allow sealing: any non-CC recipient
// rejected, or every non-CC recipient signed. CC recipients never gate
// completion; a document whose only recipients are CC is not complete.
func IsComplete(recipients []Recipient) bool {
	gating := 0
	allSigned := true
	for _, recipient := range recipients {
		if recipient.Role == RoleCC {
			continue
		}
		gating++
		switch recipient.SigningStatus {
		case SigningStatusRejected:
			return true
		case SigningStatusSigned:
		default:
			allSigned = false
		}
	}
	return gating > 0 && allSigned
}

// RejectedRecipient returns the first non-CC recipient that rejected.
func RejectedRecipient(recipients []Recipient) (Recipient, bool) {
	for _, recipient := range recipients {
		if recipient.Role == RoleCC {
			continue
		}
		if recipient.SigningStatus == SigningStatusRejected {
			return recipient, true
		}
	}
	return Recipient{}, false
}

// FieldsContainUnsignedRequiredField reports whether a required field still
// lacks its value. Signature fields need a signature record; other fields need
// to be inserted. Fields owned by CC recipients are ignored.
func FieldsContainUnsignedRequiredField(fields []Field, recipients []Recipient) bool {
	cc := make(map[int64]bool, len(recipients))
	for _, recipient := range recipients {
		if recipient.Role == RoleCC {
			cc[recipient.ID] = true
		}
	}
	for _, field := range fields {
		if !field.Required || cc[field.RecipientID] {
			continue
		}
		if field.Type.IsSignature() {
			if field.Signature == nil || !field.Inserted {
				return true
			}
			continue
		}
		if !field.Inserted {
			return true
		}
	}
	return false
}

// NonCCRecipients filters out CC recipients.
func NonCCRecipients(recipients []Recipient) []Recipient {
	out := make([]Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient.Role != RoleCC {
			out = append(out, recipient)
		}
	}
	return out
}
