/*
Copyright 2024 The Warmshim Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package bridge implements the invocation bridge to a warm backend server.

Every invocation opens one TCP connection to the backend's control port and writes two fields,
the compact JSON event and the handler name, in that order. The backend answers with a single
JSON document and closes the connection. The document is either a response (statusCode / status,
headers, body) or an error (errorMessage, errorType, stackTrace).

Two framings are supported:

	delimited:       <event-json>\r\n<handler-name>\r\n
	length-prefixed: <len>\r\n<event-json>\r\n<len>\r\n<handler-name>\r\n

A backend that is still starting is retried: refused or reset connections after a fixed
interval, connections closed without any response bytes immediately.
*/
package bridge
