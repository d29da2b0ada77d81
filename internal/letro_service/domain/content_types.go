package domain

// Letro content types.
const (
	ContentTypePairingRequest  = "application/vnd.relaycorp.letro.contact-pairing-request"
	ContentTypePairingFailure  = "application/vnd.relaycorp.letro.contact-pairing-failure"
	ContentTypePairingAuth     = "application/vnd.relaycorp.letro.contact-pairing-auth"
	ContentTypeAccountRequest  = "application/vnd.relaycorp.letro.account-creation-request"
	ContentTypeAccountCreated  = "application/vnd.relaycorp.letro.account-creation-completed"
	ContentTypeConnParamsReq   = "application/vnd.relaycorp.letro.connection-params-request"
	ContentTypeConnParams      = "application/vnd.relaycorp.letro.connection-params"
	ContentTypeMisconfiguredIE = "application/vnd.relaycorp.letro.misconfigured-internet-endpoint"
)

// AwalaConnectionParamsContentType is served by Internet gateways at /connection-params.der.
const AwalaConnectionParamsContentType = "application/vnd.etsi.tsl.der"

// LetroServiceOID identifies Letro in VeraId signatures and member keys.
const LetroServiceOID = "1.3.6.1.4.1.58708.2.0"
