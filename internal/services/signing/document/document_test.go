package document

import "testing"

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name       string
		recipients []Recipient
		want       bool
	}{
		{name: "no recipients", want: false},
		{
			name: "only cc",
			recipients: []Recipient{
				{ID: 1, Role: RoleCC, SigningStatus: SigningStatusNotSigned},
			},
			want: false,
		},
		{
			name: "all signers signed, cc pending",
			recipients: []Recipient{
				{ID: 1, Role: RoleSigner, SigningStatus: SigningStatusSigned},
				{ID: 2, Role: RoleApprover, SigningStatus: SigningStatusSigned},
				{ID: 3, Role: RoleCC, SigningStatus: SigningStatusNotSigned},
			},
			want: true,
		},
		{
			name: "one pending signer",
			recipients: []Recipient{
				{ID: 1, Role: RoleSigner, SigningStatus: SigningStatusSigned},
				{ID: 2, Role: RoleViewer, SigningStatus: SigningStatusNotSigned},
			},
			want: false,
		},
		{
			name: "rejection completes",
			recipients: []Recipient{
				{ID: 1, Role: RoleSigner, SigningStatus: SigningStatusRejected},
				{ID: 2, Role: RoleSigner, SigningStatus: SigningStatusNotSigned},
			},
			want: true,
		},
		{
			name: "cc rejection ignored",
			recipients: []Recipient{
				{ID: 1, Role: RoleSigner, SigningStatus: SigningStatusNotSigned},
				{ID: 2, Role: RoleCC, SigningStatus: SigningStatusRejected},
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComplete(tt.recipients); got != tt.want {
				t.Fatalf("IsComplete = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRejectedRecipient(t *testing.T) {
	recipients := []Recipient{
		{ID: 1, Role: RoleCC, SigningStatus: SigningStatusRejected},
		{ID: 2, Role: RoleSigner, SigningStatus: SigningStatusRejected, RejectionReason: "wrong amount"},
	}
	got, ok := RejectedRecipient(recipients)
	if !ok {
		t.Fatal("expected rejected recipient")
	}
	if got.ID != 2 || got.RejectionReason != "wrong amount" {
		t.Fatalf("rejected recipient = %+v", got)
	}
	if _, ok := RejectedRecipient(recipients[:1]); ok {
		t.Fatal("expected cc rejection to be ignored")
	}
}

func TestFieldsContainUnsignedRequiredField(t *testing.T) {
	recipients := []Recipient{
		{ID: 1, Role: RoleSigner},
		{ID: 2, Role: RoleCC},
	}
	signed := &Signature{ID: 10}
	tests := []struct {
		name   string
		fields []Field
		want   bool
	}{
		{
			name: "all satisfied",
			fields: []Field{
				{ID: 1, RecipientID: 1, Type: FieldTypeSignature, Required: true, Inserted: true, Signature: signed},
				{ID: 2, RecipientID: 1, Type: FieldTypeName, Required: true, Inserted: true},
			},
			want: false,
		},
		{
			name: "signature missing",
			fields: []Field{
				{ID: 1, RecipientID: 1, Type: FieldTypeSignature, Required: true, Inserted: true},
			},
			want: true,
		},
		{
			name: "text not inserted",
			fields: []Field{
				{ID: 2, RecipientID: 1, Type: FieldTypeText, Required: true},
			},
			want: true,
		},
		{
			name: "optional not inserted",
			fields: []Field{
				{ID: 2, RecipientID: 1, Type: FieldTypeText},
			},
			want: false,
		},
		{
			name: "cc field ignored",
			fields: []Field{
				{ID: 3, RecipientID: 2, Type: FieldTypeSignature, Required: true},
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FieldsContainUnsignedRequiredField(tt.fields, recipients); got != tt.want {
				t.Fatalf("FieldsContainUnsignedRequiredField = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSealedFileName(t *testing.T) {
	tests := []struct {
		title    string
		rejected bool
		want     string
	}{
		{"Lease Agreement.pdf", false, "Lease Agreement_signed.pdf"},
		{"Lease Agreement.PDF", true, "Lease Agreement_rejected.pdf"},
		{"contract", false, "contract_signed.pdf"},
		{"  ", false, "document_signed.pdf"},
	}
	for _, tt := range tests {
		if got := SealedFileName(tt.title, tt.rejected); got != tt.want {
			t.Fatalf("SealedFileName(%q, %v) = %q, want %q", tt.title, tt.rejected, got, tt.want)
		}
	}
}

func TestStatusIsSealed(t *testing.T) {
	if StatusPending.IsSealed() || StatusDraft.IsSealed() {
		t.Fatal("pending and draft are not sealed")
	}
	if !StatusCompleted.IsSealed() || !StatusRejected.IsSealed() {
		t.Fatal("completed and rejected are sealed")
	}
}
