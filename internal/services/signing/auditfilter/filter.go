// Package auditfilter translates AIP-160 filter expressions over document
// audit logs into SQL conditions.
package auditfilter

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Declarations returns the identifiers an audit log filter may reference.
func Declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("type", filtering.TypeString),
		filtering.DeclareIdent("user_id", filtering.TypeString),
		filtering.DeclareIdent("transaction_id", filtering.TypeString),
		filtering.DeclareIdent("created_at", filtering.TypeTimestamp),
	)
}

// Condition is a SQL boolean expression with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Query returns an audit log query for documentID narrowed by c.
func (c Condition) Query(documentID int64, pageSize int) storage.AuditLogQuery {
	return storage.AuditLogQuery{
		DocumentID: documentID,
		Clause:     c.Clause,
		Params:     c.Params,
		PageSize:   pageSize,
	}
}

var columns = map[string]string{
	"type":           "type",
	"user_id":        "user_id",
	"transaction_id": "transaction_id",
	"created_at":     "created_at",
}

// Parse translates filter. An empty filter yields an empty condition.
// Malformed filters are VALIDATION errors.
func Parse(filter string) (Condition, error) {
	if strings.TrimSpace(filter) == "" {
		return Condition{}, nil
	}
	decls, err := Declarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filter, decls)
	if err != nil {
		return Condition{}, apperrors.Wrap(apperrors.CodeValidation, "parse filter", err)
	}
	cond, err := translateExpr(parsed.CheckedExpr.GetExpr())
	if err != nil {
		return Condition{}, apperrors.Wrap(apperrors.CodeValidation, "translate filter", err)
	}
	return cond, nil
}

func translateExpr(e *expr.Expr) (Condition, error) {
	if e == nil {
		return Condition{}, nil
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return Condition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (Condition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateJunction(call.Args, "AND")
	case "_||_", "OR":
		return translateJunction(call.Args, "OR")
	case "NOT":
		return translateNot(call.Args)
	case "_==_", "=":
		return translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return translateComparison(call.Args, "!=")
	case "_<_", "<":
		return translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return translateComparison(call.Args, "<=")
	case "_>_", ">":
		return translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return translateComparison(call.Args, ">=")
	default:
		return Condition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateJunction(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("%s requires 2 arguments", op)
	}
	left, err := translateExpr(args[0])
	if err != nil {
		return Condition{}, err
	}
	right, err := translateExpr(args[1])
	if err != nil {
		return Condition{}, err
	}
	return Condition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func translateNot(args []*expr.Expr) (Condition, error) {
	if len(args) != 1 {
		return Condition{}, fmt.Errorf("NOT requires 1 argument")
	}
	inner, err := translateExpr(args[0])
	if err != nil {
		return Condition{}, err
	}
	return Condition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
}

func translateComparison(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := fieldName(args[0])
	if err != nil {
		return Condition{}, err
	}
	column, ok := columns[field]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field: %s", field)
	}
	value, err := constValue(args[1])
	if err != nil {
		return Condition{}, err
	}
	if field == "created_at" {
		if _, ok := value.(int64); !ok {
			return Condition{}, fmt.Errorf("created_at must be compared with a timestamp")
		}
	}
	return Condition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}

func fieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func constValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		if value, ok := kind.ConstExpr.ConstantKind.(*expr.Constant_StringValue); ok {
			return value.StringValue, nil
		}
		return nil, fmt.Errorf("unsupported constant type: %T", kind.ConstExpr.ConstantKind)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return timestampMillis(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

// timestampMillis converts a timestamp literal to the stored epoch
// milliseconds.
func timestampMillis(e *expr.Expr) (int64, error) {
	constant, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a constant string")
	}
	value, ok := constant.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, value.StringValue)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", value.StringValue)
	}
	return t.UTC().UnixMilli(), nil
}
