package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an Error independently of its message so that callers can
// match with errors.Is against the sentinels below.
type Kind string

const (
	KindCartNotFound               Kind = "CART_NOT_FOUND"
	KindProductNotInCart           Kind = "PRODUCT_NOT_IN_CART"
	KindEmptyCart                  Kind = "EMPTY_CART"
	KindInsufficientStock          Kind = "INSUFFICIENT_STOCK"
	KindUserNotFound               Kind = "USER_NOT_FOUND"
	KindProductNotFound            Kind = "PRODUCT_NOT_FOUND"
	KindUserLookupFailed           Kind = "USER_LOOKUP_FAILED"
	KindProductLookupFailed        Kind = "PRODUCT_LOOKUP_FAILED"
	KindOrderSubmissionFailed      Kind = "ORDER_SUBMISSION_FAILED"
	KindExternalServiceUnavailable Kind = "EXTERNAL_SERVICE_UNAVAILABLE"
	KindConcurrentModification     Kind = "CONCURRENT_MODIFICATION"
	KindBadRequest                 Kind = "BAD_REQUEST"
	KindInternal                   Kind = "INTERNAL"
)

// Error represents an application error
type Error struct {
	Code    int            `json:"code"`
	Kind    Kind           `json:"kind,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new Error
func New(code int, kind Kind, message string, err error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Sentinels for errors.Is matching. Never return these directly from code
// that adds detail; use the constructors instead.
var (
	ErrCartNotFound               = New(http.StatusNotFound, KindCartNotFound, "cart not found", nil)
	ErrProductNotInCart           = New(http.StatusNotFound, KindProductNotInCart, "product not in cart", nil)
	ErrEmptyCart                  = New(http.StatusBadRequest, KindEmptyCart, "cart is empty", nil)
	ErrInsufficientStock          = New(http.StatusBadRequest, KindInsufficientStock, "insufficient stock", nil)
	ErrUserNotFound               = New(http.StatusNotFound, KindUserNotFound, "user not found", nil)
	ErrProductNotFound            = New(http.StatusNotFound, KindProductNotFound, "product not found", nil)
	ErrOrderSubmissionFailed      = New(http.StatusBadGateway, KindOrderSubmissionFailed, "order submission failed", nil)
	ErrExternalServiceUnavailable = New(http.StatusServiceUnavailable, KindExternalServiceUnavailable, "external service unavailable", nil)
	ErrConcurrentModification     = New(http.StatusConflict, KindConcurrentModification, "cart was modified concurrently, retry the request", nil)
	ErrBadRequest                 = New(http.StatusBadRequest, KindBadRequest, "bad request", nil)
	ErrInternal                   = New(http.StatusInternalServerError, KindInternal, "internal server error", nil)
)

func CartNotFound(userID string) *Error {
	return New(http.StatusNotFound, KindCartNotFound, fmt.Sprintf("cart not found for user %s", userID), nil)
}

func CartNotFoundByID(cartID string) *Error {
	return New(http.StatusNotFound, KindCartNotFound, fmt.Sprintf("cart %s not found", cartID), nil)
}

func ProductNotInCart(productID string) *Error {
	return New(http.StatusNotFound, KindProductNotInCart, fmt.Sprintf("product %s not found in cart", productID), nil)
}

func EmptyCart(userID string) *Error {
	return New(http.StatusBadRequest, KindEmptyCart, fmt.Sprintf("cart for user %s has no products", userID), nil)
}

// InsufficientStock reports available vs requested units for a product.
func InsufficientStock(productID string, available, requested int64) *Error {
	e := New(http.StatusBadRequest, KindInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested), nil)
	e.Details = map[string]any{
		"product_id": productID,
		"available":  available,
		"requested":  requested,
	}
	return e
}

func NoStock(productID string) *Error {
	e := New(http.StatusBadRequest, KindInsufficientStock, fmt.Sprintf("no stock available for product %s", productID), nil)
	e.Details = map[string]any{"product_id": productID, "available": 0}
	return e
}

func InvalidQuantity(quantity int64) *Error {
	e := New(http.StatusBadRequest, KindInsufficientStock, fmt.Sprintf("quantity must be greater than 0 (got %d)", quantity), nil)
	e.Details = map[string]any{"requested": quantity}
	return e
}

func UserNotFound(userID string, err error) *Error {
	return New(http.StatusNotFound, KindUserNotFound, fmt.Sprintf("user %s not found", userID), err)
}

func ProductNotFound(productID string, err error) *Error {
	return New(http.StatusNotFound, KindProductNotFound, fmt.Sprintf("product %s not found in inventory", productID), err)
}

func OrderSubmissionFailed(userID string, err error) *Error {
	return New(http.StatusBadGateway, KindOrderSubmissionFailed, fmt.Sprintf("order submission failed for user %s", userID), err)
}

func ExternalServiceUnavailable(service string, err error) *Error {
	return New(http.StatusServiceUnavailable, KindExternalServiceUnavailable, fmt.Sprintf("%s service unavailable", service), err)
}

func ConcurrentModification(userID string, err error) *Error {
	return New(http.StatusConflict, KindConcurrentModification, fmt.Sprintf("cart for user %s was modified concurrently, retry the request", userID), err)
}

func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, KindBadRequest, message, err)
}

func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, KindInternal, message, err)
}

// As extracts the *Error from err, falling back to an internal error.
func As(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// ErrorMiddleware renders the last error attached with c.Error.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := As(c.Errors.Last().Err)
		c.AbortWithStatusJSON(appErr.Code, appErr)
	}
}
