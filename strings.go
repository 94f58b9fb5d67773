package nomagichttp

var (
	defaultServerName  = []byte("nomagichttp")
	defaultContentType = []byte("text/plain; charset=utf-8")
)

var (
	strSlash        = []byte("/")
	strCRLF         = []byte("\r\n")
	strHTTP11       = []byte("HTTP/1.1")
	strHTTP10       = []byte("HTTP/1.0")
	strColonSpace   = []byte(": ")
	strColon        = []byte(":")
	strCRLFCRLF     = []byte("\r\n\r\n")
	strZeroCRLFCRLF = []byte("0\r\n\r\n")

	strConnection       = []byte("Connection")
	strContentLength    = []byte("Content-Length")
	strContentType      = []byte("Content-Type")
	strContentEncoding  = []byte("Content-Encoding")
	strAcceptEncoding   = []byte("Accept-Encoding")
	strDate             = []byte("Date")
	strHost             = []byte("Host")
	strServer           = []byte("Server")
	strTransferEncoding = []byte("Transfer-Encoding")
	strTrailer          = []byte("Trailer")
	strUserAgent        = []byte("User-Agent")

	strClose    = []byte("close")
	strChunked  = []byte("chunked")
	strIdentity = []byte("identity")
	strGzip     = []byte("gzip")
	strBr       = []byte("br")
)
