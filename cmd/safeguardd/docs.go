package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           safeguardd API
// @version         1.0
// @description     HTTP API for the SafeGuardian local AI core: model artifact acquisition, compliance-checked generation, and emergency classification.
//
// @contact.name   safeguardd maintainers
// @contact.url    https://github.com/your-org/safeguardd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
