package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDuplicateSerial            Kind = "duplicate_serial"
	KindBelowAssignedFloor         Kind = "below_assigned_floor"
	KindPrivilegeTooLow            Kind = "privilege_too_low"
	KindDeleteRequiresAdmin        Kind = "delete_requires_admin"
	KindSerialUnavailable          Kind = "serial_unavailable"
	KindInsufficientStock          Kind = "insufficient_stock"
	KindSerialQuantityFixed        Kind = "serial_quantity_fixed"
	KindActiveDeploymentMembership Kind = "active_deployment_membership"
	KindEquipmentConflict          Kind = "equipment_conflict"
	KindNotFound                   Kind = "not_found"
	KindPermissionDenied           Kind = "permission_denied"
	KindInvalidArgument            Kind = "invalid_argument"
	KindConflict                   Kind = "conflict"
	KindUnauthenticated            Kind = "unauthenticated"
)

// Error is a domain failure. Kind identifies the rule that was violated and
// Details carries the numbers a caller needs to explain it.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrDuplicateSerial            = &Error{Kind: KindDuplicateSerial}
	ErrBelowAssignedFloor         = &Error{Kind: KindBelowAssignedFloor}
	ErrPrivilegeTooLow            = &Error{Kind: KindPrivilegeTooLow}
	ErrDeleteRequiresAdmin        = &Error{Kind: KindDeleteRequiresAdmin}
	ErrSerialUnavailable          = &Error{Kind: KindSerialUnavailable}
	ErrInsufficientStock          = &Error{Kind: KindInsufficientStock}
	ErrSerialQuantityFixed        = &Error{Kind: KindSerialQuantityFixed}
	ErrActiveDeploymentMembership = &Error{Kind: KindActiveDeploymentMembership}
	ErrEquipmentConflict          = &Error{Kind: KindEquipmentConflict}
	ErrNotFound                   = &Error{Kind: KindNotFound}
	ErrPermissionDenied           = &Error{Kind: KindPermissionDenied}
	ErrInvalidArgument            = &Error{Kind: KindInvalidArgument}
	ErrConflict                   = &Error{Kind: KindConflict}
	ErrUnauthenticated            = &Error{Kind: KindUnauthenticated}
)

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func DuplicateSerial(itemID, serial string) *Error {
	return &Error{
		Kind:    KindDuplicateSerial,
		Message: fmt.Sprintf("serial %q already exists", serial),
		Details: map[string]any{"item_id": itemID, "serial": serial},
	}
}

func BelowAssignedFloor(itemID string, requested, minimum int) *Error {
	return &Error{
		Kind:    KindBelowAssignedFloor,
		Message: fmt.Sprintf("cannot set quantity below assigned amount; minimum %d", minimum),
		Details: map[string]any{"item_id": itemID, "requested": requested, "minimum": minimum},
	}
}

func PrivilegeTooLow(action string) *Error {
	return &Error{
		Kind:    KindPrivilegeTooLow,
		Message: fmt.Sprintf("only an admin may %s", action),
		Details: map[string]any{"action": action},
	}
}

func DeleteRequiresAdmin(itemID string) *Error {
	return &Error{
		Kind:    KindDeleteRequiresAdmin,
		Message: "only an admin may delete inventory items",
		Details: map[string]any{"item_id": itemID},
	}
}

func SerialUnavailable(itemID, serial string) *Error {
	return &Error{
		Kind:    KindSerialUnavailable,
		Message: fmt.Sprintf("serial %q is not available", serial),
		Details: map[string]any{"item_id": itemID, "serial": serial},
	}
}

func InsufficientStock(itemID string, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock: requested %d, available %d", requested, available),
		Details: map[string]any{"item_id": itemID, "requested": requested, "available": available},
	}
}

func SerialQuantityFixed(assignedID string, requested int) *Error {
	return &Error{
		Kind:    KindSerialQuantityFixed,
		Message: "serial-numbered items always have quantity 1",
		Details: map[string]any{"assigned_item_id": assignedID, "requested": requested},
	}
}

func ActiveDeploymentMembership(personID string, deploymentIDs []string) *Error {
	return &Error{
		Kind:    KindActiveDeploymentMembership,
		Message: "person participates in an active deployment",
		Details: map[string]any{"person_id": personID, "deployment_ids": deploymentIDs},
	}
}

func EquipmentConflict(personID string, held int) *Error {
	return &Error{
		Kind:    KindEquipmentConflict,
		Message: fmt.Sprintf("person holds %d assigned items", held),
		Details: map[string]any{"person_id": personID, "held": held},
	}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func PermissionDenied(permission string) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Message: fmt.Sprintf("permission %s required", permission),
		Details: map[string]any{"permission": permission},
	}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// With returns a copy of e with an extra detail attached.
func (e *Error) With(key string, value any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}
