package errors

import rpccode "google.golang.org/genproto/googleapis/rpc/code"

//ResqError Error with code.
type ResqError interface {
	Code() rpccode.Code
	Error() string
}

//CustomError Custom error without code, used for internal control flow.
type CustomError struct {
	Msg string
}

func (e *CustomError) Error() string {
	return e.Msg
}

//UnknownError Unknown error
type UnknownError struct {
	Msg string
}

func (e *UnknownError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *UnknownError) Code() rpccode.Code {
	return rpccode.Code_INTERNAL
}

//MalformedRequestError Error for malformed request. Status is the HTTP status to answer with.
type MalformedRequestError struct {
	Status int
	Msg    string
}

func (mr *MalformedRequestError) Error() string {
	return mr.Msg
}

//Code Code of the error.
func (mr *MalformedRequestError) Code() rpccode.Code {
	return rpccode.Code_INVALID_ARGUMENT
}

//NotFoundError Error for missing entity
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *NotFoundError) Code() rpccode.Code {
	return rpccode.Code_NOT_FOUND
}

//UnauthenticatedError Error for missing or invalid credentials
type UnauthenticatedError struct {
	Msg string
}

func (e *UnauthenticatedError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *UnauthenticatedError) Code() rpccode.Code {
	return rpccode.Code_UNAUTHENTICATED
}

//PermissionDeniedError Error for a permission the user refused to grant
type PermissionDeniedError struct {
	Msg string
}

func (e *PermissionDeniedError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *PermissionDeniedError) Code() rpccode.Code {
	return rpccode.Code_PERMISSION_DENIED
}

//UnavailableError Error for a capability that is not present in the environment
type UnavailableError struct {
	Msg string
}

func (e *UnavailableError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *UnavailableError) Code() rpccode.Code {
	return rpccode.Code_UNAVAILABLE
}
