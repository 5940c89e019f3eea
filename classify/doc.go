// Package classify maps raw backend failures onto a closed taxonomy of
// error codes with a retryability verdict. Classification is content based
// rather than type based: it inspects the error message, sentinel identity
// (context cancellation, missing executables) and structured hints such as
// an HTTP status code or a captured stderr tail. The classifier never fails;
// unrecognized errors map to CodeUnknown and are not retried.
package classify
