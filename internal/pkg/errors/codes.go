package errors

import (
	"fmt"
	"net/http"
)

// Orchestration error codes.
// Messages stay generic; the specifics travel in Params and the wrapped error.
const (
	CodeCreateFailed      = "CREATE_FAILED"
	CodeHealthCheckFailed = "HEALTH_CHECK_FAILED"
	CodeAllocationFailed  = "ALLOCATION_FAILED"
	CodeProbeUnavailable  = "PROBE_UNAVAILABLE"
	CodeActionConflict    = "ACTION_CONFLICT"
	CodeNoCapacity        = "NO_CAPACITY"
	CodeScalingBound      = "SCALING_BOUND_REACHED"
)

// Registry and flow table error codes.
const (
	CodeInstanceNotFound  = "INSTANCE_NOT_FOUND"
	CodeInstanceExists    = "INSTANCE_ALREADY_EXISTS"
	CodeInstanceNotActive = "INSTANCE_NOT_ACTIVE"
	CodeInstanceInUse     = "INSTANCE_IN_USE"
	CodeFlowNotFound      = "FLOW_NOT_FOUND"
	CodeUnknownVNFType    = "UNKNOWN_VNF_TYPE"
)

// SFC error codes.
const (
	CodeSFCNotFound        = "SFC_NOT_FOUND"
	CodeUnknownRequestType = "UNKNOWN_REQUEST_TYPE"
	CodeInvalidChain       = "INVALID_CHAIN"
	CodeSFCExists          = "SFC_ALREADY_EXISTS"
	CodeSFCNotActive       = "SFC_NOT_ACTIVE"
)

// Auth error codes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

// Generic API codes.
const (
	CodeInternalError = "INTERNAL_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
)

// Validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// ErrCreateFailedf reports that the runtime refused to create a unit.
func ErrCreateFailedf(vnfType string, err error) *AppError {
	return &AppError{
		Code:       CodeCreateFailed,
		Message:    "runtime failed to create instance",
		HTTPStatus: http.StatusBadGateway,
		Params:     map[string]interface{}{"vnf_type": vnfType},
		Err:        err,
	}
}

// ErrHealthCheckFailedf reports a unit that never passed its health gate.
func ErrHealthCheckFailedf(vnfType, unitID string, err error) *AppError {
	return &AppError{
		Code:       CodeHealthCheckFailed,
		Message:    "instance did not become healthy in time",
		HTTPStatus: http.StatusGatewayTimeout,
		Params:     map[string]interface{}{"vnf_type": vnfType, "unit_id": unitID},
		Err:        err,
	}
}

// ErrAllocationFailedf reports an SFC hop that could not be satisfied.
func ErrAllocationFailedf(vnfType string, hop int, err error) *AppError {
	return &AppError{
		Code:       CodeAllocationFailed,
		Message:    fmt.Sprintf("hop %d (%s) could not be allocated", hop, vnfType),
		HTTPStatus: http.StatusUnprocessableEntity,
		Params:     map[string]interface{}{"vnf_type": vnfType, "hop": hop},
		Err:        err,
	}
}

// ErrProbeUnavailablef reports a health or metrics probe failure.
func ErrProbeUnavailablef(instanceID string, err error) *AppError {
	return &AppError{
		Code:       CodeProbeUnavailable,
		Message:    "instance probe unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Params:     map[string]interface{}{"instance_id": instanceID},
		Err:        err,
	}
}

// ErrActionConflictf reports a scaling action dropped because one is already in flight.
func ErrActionConflictf(vnfType string) *AppError {
	return &AppError{
		Code:       CodeActionConflict,
		Message:    "a scaling action is already in flight for this vnf type",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"vnf_type": vnfType},
	}
}

// ErrScalingBoundf reports a manual scaling action blocked by min/max bounds.
func ErrScalingBoundf(vnfType, bound string, limit int) *AppError {
	return &AppError{
		Code:       CodeScalingBound,
		Message:    fmt.Sprintf("%s already at %s of %d instances", vnfType, bound, limit),
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"vnf_type": vnfType, "bound": bound, "limit": limit},
	}
}

// ErrNoCapacityf reports that no healthy instance of a type is available.
func ErrNoCapacityf(vnfType string) *AppError {
	return &AppError{
		Code:       CodeNoCapacity,
		Message:    "no healthy instance available",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"vnf_type": vnfType},
	}
}

// ErrInstanceNotFoundf creates an instance not found error.
func ErrInstanceNotFoundf(instanceID string) *AppError {
	return &AppError{
		Code:       CodeInstanceNotFound,
		Message:    "vnf instance not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"instance_id": instanceID},
	}
}

// ErrInstanceExistsf creates a duplicate registration error.
func ErrInstanceExistsf(instanceID string) *AppError {
	return &AppError{
		Code:       CodeInstanceExists,
		Message:    "vnf instance already registered",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"instance_id": instanceID},
	}
}

// ErrInstanceNotActivef rejects a flow rule for an instance that is not ACTIVE.
func ErrInstanceNotActivef(instanceID, status string) *AppError {
	return &AppError{
		Code:       CodeInstanceNotActive,
		Message:    "vnf instance is not active",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"instance_id": instanceID, "status": status},
	}
}

// ErrInstanceInUsef rejects removal of an instance a live service chain references.
func ErrInstanceInUsef(instanceID string) *AppError {
	return &AppError{
		Code:       CodeInstanceInUse,
		Message:    "vnf instance is referenced by a live service chain",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"instance_id": instanceID},
	}
}

// ErrFlowNotFoundf creates a flow rule not found error.
func ErrFlowNotFoundf(flowID string) *AppError {
	return &AppError{
		Code:       CodeFlowNotFound,
		Message:    "flow rule not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"flow_id": flowID},
	}
}

// ErrUnknownVNFTypef rejects a vnf type outside the configured catalog.
func ErrUnknownVNFTypef(vnfType string) *AppError {
	return &AppError{
		Code:       CodeUnknownVNFType,
		Message:    "unknown vnf type: " + vnfType,
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"vnf_type": vnfType},
	}
}

// ErrSFCNotFoundf creates an SFC instance not found error.
func ErrSFCNotFoundf(sfcID string) *AppError {
	return &AppError{
		Code:       CodeSFCNotFound,
		Message:    "sfc instance not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"sfc_id": sfcID},
	}
}

// ErrUnknownRequestTypef rejects a request type missing from the chain catalog.
func ErrUnknownRequestTypef(requestType string) *AppError {
	return &AppError{
		Code:       CodeUnknownRequestType,
		Message:    "unknown request type: " + requestType,
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"request_type": requestType},
	}
}

// ErrSFCExistsf rejects a request id that is already being served.
func ErrSFCExistsf(sfcID string) *AppError {
	return &AppError{
		Code:       CodeSFCExists,
		Message:    "sfc instance already exists",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"sfc_id": sfcID},
	}
}

// ErrSFCNotActivef rejects cleanup of a chain that is still allocating.
func ErrSFCNotActivef(sfcID, status string) *AppError {
	return &AppError{
		Code:       CodeSFCNotActive,
		Message:    "sfc instance is not active",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"sfc_id": sfcID, "status": status},
	}
}

// ErrInvalidChainf rejects an empty chain or one naming unknown/duplicate types.
func ErrInvalidChainf(reason string) *AppError {
	return &AppError{
		Code:       CodeInvalidChain,
		Message:    "invalid service chain: " + reason,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrInvalidRequestFieldf creates a bad request error for a malformed field.
func ErrInvalidRequestFieldf(fieldName string) *AppError {
	return &AppError{
		Code:       CodeInvalidRequestField,
		Message:    "request contains invalid field: " + fieldName,
		HTTPStatus: http.StatusBadRequest,
	}
}
