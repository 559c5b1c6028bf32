// Package odata is a small OData v4 client: URI construction, CSDL metadata,
// entity set paging and create/update/delete over JSON.
//
// It does not authenticate; pass an http.Client whose transport attaches credentials.
package odata
